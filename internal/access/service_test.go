package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/dbpage"
)

type fakeUserStore struct {
	byID map[string]User
}

func newFakeUserStore() *fakeUserStore { return &fakeUserStore{byID: map[string]User{}} }

func (f *fakeUserStore) Create(ctx context.Context, u *User) (User, error) {
	f.byID[u.ID] = *u
	return *u, nil
}

func (f *fakeUserStore) Update(ctx context.Context, u *User) error {
	f.byID[u.ID] = *u
	return nil
}

func (f *fakeUserStore) Find(ctx context.Context, id string) (User, error) {
	u, ok := f.byID[id]
	if !ok {
		return User{}, apperr.NotFound("User", "%s", id)
	}

	return u, nil
}

func (f *fakeUserStore) List(ctx context.Context, cursor dbpage.Cursor, limit int) ([]User, dbpage.CursorPagination, error) {
	var out []User
	for _, u := range f.byID {
		out = append(out, u)
	}

	return out, dbpage.CursorPagination{}, nil
}

// RoleForSubject satisfies authz.SubjectRoles.
func (f *fakeUserStore) RoleForSubject(ctx context.Context, subjectID string) (string, error) {
	u, err := f.Find(ctx, subjectID)
	if err != nil {
		return "", err
	}

	return u.CurrentRole(), nil
}

type fakeRoleStore struct {
	byID map[string]Role
}

func newFakeRoleStore() *fakeRoleStore { return &fakeRoleStore{byID: map[string]Role{}} }

func (f *fakeRoleStore) Create(ctx context.Context, r *Role) (Role, error) {
	f.byID[r.ID] = *r
	return *r, nil
}

func (f *fakeRoleStore) Update(ctx context.Context, r *Role) error {
	f.byID[r.ID] = *r
	return nil
}

func (f *fakeRoleStore) Find(ctx context.Context, id string) (Role, error) {
	r, ok := f.byID[id]
	if !ok {
		return Role{}, apperr.NotFound("Role", "%s", id)
	}

	return r, nil
}

func (f *fakeRoleStore) RoleNameForRole(ctx context.Context, roleID string) (string, error) {
	r, err := f.Find(ctx, roleID)
	if err != nil {
		return "", err
	}

	return r.Name, nil
}

func (f *fakeRoleStore) PermissionSetsForRole(ctx context.Context, roleID string) ([]string, error) {
	r, err := f.Find(ctx, roleID)
	if err != nil {
		return nil, err
	}

	return r.GrantedPermissionSets(), nil
}

func newTestService(t *testing.T) (*Service, *fakeUserStore, *fakeRoleStore) {
	t.Helper()

	users := newFakeUserStore()
	roles := newFakeRoleStore()
	enforcer := authz.NewEnforcer(users, roles)

	return &Service{users: users, roles: roles, enforcer: enforcer}, users, roles
}

func seedSuperuser(t *testing.T, svc *Service, users *fakeUserStore, roles *fakeRoleStore) authz.Subject {
	t.Helper()

	superuserRole := NewRole(authz.RoleNameSuperuser, auditInfo())
	roles.byID[superuserRole.ID] = *superuserRole

	admin := NewUser("admin@example.com", superuserRole.ID, auditInfo())
	users.byID[admin.ID] = *admin

	return authz.UserSubject(admin.ID)
}

func TestServiceCreateRoleRequiresWriterGrant(t *testing.T) {
	svc, users, roles := newTestService(t)

	viewerRole := NewRole("viewer only", auditInfo())
	viewerRole.AddPermissionSet(string(authz.PermissionSetAccessViewer), auditInfo())
	roles.byID[viewerRole.ID] = *viewerRole

	plainUser := NewUser("plain@example.com", viewerRole.ID, auditInfo())
	users.byID[plainUser.ID] = *plainUser

	_, err := svc.CreateRole(context.Background(), authz.UserSubject(plainUser.ID), "loan officer")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuthorizationDenied))
}

func TestServiceCreateRoleAllowedForSuperuser(t *testing.T) {
	svc, users, roles := newTestService(t)
	admin := seedSuperuser(t, svc, users, roles)

	role, err := svc.CreateRole(context.Background(), admin, "loan officer")
	require.NoError(t, err)
	assert.Equal(t, "loan officer", role.Name)
}

func TestServiceCreateUserThenUpdateRole(t *testing.T) {
	svc, users, roles := newTestService(t)
	admin := seedSuperuser(t, svc, users, roles)

	officerRole, err := svc.CreateRole(context.Background(), admin, "loan officer")
	require.NoError(t, err)

	managerRole, err := svc.CreateRole(context.Background(), admin, "manager")
	require.NoError(t, err)

	user, err := svc.CreateUser(context.Background(), admin, "officer@example.com", officerRole.ID)
	require.NoError(t, err)
	assert.Equal(t, officerRole.ID, user.CurrentRole())

	err = svc.UpdateUserRole(context.Background(), admin, user.ID, managerRole.ID)
	require.NoError(t, err)

	updated, err := svc.User(context.Background(), admin, user.ID)
	require.NoError(t, err)
	assert.Equal(t, managerRole.ID, updated.CurrentRole())
}

func TestServiceUserReadDeniedWithoutViewerGrant(t *testing.T) {
	svc, users, roles := newTestService(t)

	barren := NewRole("no grants", auditInfo())
	roles.byID[barren.ID] = *barren

	caller := NewUser("caller@example.com", barren.ID, auditInfo())
	users.byID[caller.ID] = *caller

	target := NewUser("target@example.com", barren.ID, auditInfo())
	users.byID[target.ID] = *target

	_, err := svc.User(context.Background(), authz.UserSubject(caller.ID), target.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuthorizationDenied))
}
