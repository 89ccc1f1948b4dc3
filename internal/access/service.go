package access

import (
	"context"
	"time"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apptrace"
	"github.com/northstarcredit/core/pkg/dbpage"
)

// clock is a seam so tests can observe AuditInfo.At without depending on
// wall-clock time.
var clock = time.Now

// userStore and roleStore are the persistence methods Service needs.
// *UserRepository and *RoleRepository satisfy these; tests substitute
// in-memory fakes so Service's enforcement logic can be exercised without
// a database.
type userStore interface {
	Create(ctx context.Context, user *User) (User, error)
	Update(ctx context.Context, user *User) error
	Find(ctx context.Context, id string) (User, error)
	List(ctx context.Context, cursor dbpage.Cursor, limit int) ([]User, dbpage.CursorPagination, error)
}

type roleStore interface {
	Create(ctx context.Context, role *Role) (Role, error)
	Update(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (Role, error)
}

// Service is the access-controlled entry point onto the User and Role
// aggregates: every method enforces the action it performs before
// recording any event, the same enforce-then-act shape the teacher's
// write paths follow.
type Service struct {
	users    userStore
	roles    roleStore
	enforcer *authz.Enforcer
}

func NewService(users *UserRepository, roles *RoleRepository, enforcer *authz.Enforcer) *Service {
	return &Service{users: users, roles: roles, enforcer: enforcer}
}

func (s *Service) CreateRole(ctx context.Context, subject authz.Subject, name string) (Role, error) {
	ctx, span := apptrace.Start(ctx, "access", "create_role")
	defer span.End()

	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.AllRoles(), authz.ActionRoleCreate)); err != nil {
		return Role{}, err
	}

	role := NewRole(name, authz.NewAuditInfo(subject, clock()))

	return s.roles.Create(ctx, role)
}

func (s *Service) AddPermissionSetToRole(ctx context.Context, subject authz.Subject, roleID, permissionSet string) error {
	ctx, span := apptrace.Start(ctx, "access", "add_permission_set_to_role")
	defer span.End()

	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneRole(roleID), authz.ActionRoleUpdate)); err != nil {
		return err
	}

	role, err := s.roles.Find(ctx, roleID)
	if err != nil {
		return err
	}

	if !role.AddPermissionSet(permissionSet, authz.NewAuditInfo(subject, clock())).IsExecuted() {
		return nil
	}

	return s.roles.Update(ctx, &role)
}

func (s *Service) Role(ctx context.Context, subject authz.Subject, roleID string) (Role, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.OneRole(roleID), authz.ActionRoleRead)); err != nil {
		return Role{}, err
	}

	return s.roles.Find(ctx, roleID)
}

func (s *Service) PermissionSets(ctx context.Context, subject authz.Subject) ([]PermissionSet, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.AllPermissionSets(), authz.ActionPermissionSetList)); err != nil {
		return nil, err
	}

	return PermissionSetCatalog(), nil
}

func (s *Service) CreateUser(ctx context.Context, subject authz.Subject, email, roleID string) (User, error) {
	ctx, span := apptrace.Start(ctx, "access", "create_user")
	defer span.End()

	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.AllUsers(), authz.ActionUserCreate)); err != nil {
		return User{}, err
	}

	if _, err := s.roles.Find(ctx, roleID); err != nil {
		return User{}, err
	}

	user := NewUser(email, roleID, authz.NewAuditInfo(subject, clock()))

	return s.users.Create(ctx, user)
}

func (s *Service) UpdateUserRole(ctx context.Context, subject authz.Subject, userID, roleID string) error {
	ctx, span := apptrace.Start(ctx, "access", "update_user_role")
	defer span.End()

	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.UserObject(userID), authz.ActionUserUpdateRole)); err != nil {
		return err
	}

	role, err := s.roles.Find(ctx, roleID)
	if err != nil {
		return err
	}

	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return err
	}

	if !user.UpdateRole(role.ID, authz.NewAuditInfo(subject, clock())).IsExecuted() {
		return nil
	}

	return s.users.Update(ctx, &user)
}

func (s *Service) User(ctx context.Context, subject authz.Subject, userID string) (User, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.UserObject(userID), authz.ActionUserRead)); err != nil {
		return User{}, err
	}

	return s.users.Find(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context, subject authz.Subject, cursor dbpage.Cursor, limit int) ([]User, dbpage.CursorPagination, error) {
	if err := s.enforcer.EnforcePermission(ctx, subject, authz.NewPermission(authz.AllUsers(), authz.ActionUserList)); err != nil {
		return nil, dbpage.CursorPagination{}, err
	}

	return s.users.List(ctx, cursor, limit)
}
