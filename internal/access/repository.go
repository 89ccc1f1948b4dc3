package access

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"

	"github.com/northstarcredit/core/pkg/dbpage"
	"github.com/northstarcredit/core/pkg/dbtx"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/outbox"
)

// UserRepository persists User event logs and maintains the "users"
// projection table List pages through, mirroring
// the teacher's split between an event/operation log and the fast-path
// read table a Find/FindAll actually scans.
type UserRepository struct {
	db   *sql.DB
	repo *es.Repository[User, UserEvent]
}

func NewUserRepository(db *sql.DB) *UserRepository {
	store := es.NewEventStore[UserEvent](db, "user_events", "User", outbox.NewRelay[UserEvent]("outbox_events", outbox.DefaultChannel))

	return &UserRepository{
		db:   db,
		repo: es.NewRepository(store, reduceUser, accessUserEvents),
	}
}

func (r *UserRepository) Create(ctx context.Context, user *User) (User, error) {
	created, err := r.repo.Create(ctx, user)
	if err != nil {
		return User{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return User{}, err
	}

	return created, nil
}

func (r *UserRepository) Update(ctx context.Context, user *User) error {
	if err := r.repo.Update(ctx, user); err != nil {
		return err
	}

	return r.upsertProjection(ctx, user)
}

func (r *UserRepository) Find(ctx context.Context, id string) (User, error) {
	return r.repo.Find(ctx, id)
}

func (r *UserRepository) upsertProjection(ctx context.Context, u *User) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("users").
		Columns("id", "email", "role_id", "authentication_id", "created_at").
		Values(u.ID, u.Email, u.CurrentRole(), nullIfEmpty(u.AuthenticationID), u.CreatedAt()).
		Suffix("ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, role_id = EXCLUDED.role_id, authentication_id = EXCLUDED.authentication_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// List returns a page of users ordered by id, for the access:user:list
// action.
func (r *UserRepository) List(ctx context.Context, cursor dbpage.Cursor, limit int) ([]User, dbpage.CursorPagination, error) {
	exec := dbtx.GetExecutor(ctx, r.db)

	base := squirrel.Select("id").From("users")
	paged, direction := dbpage.ApplyCursorPagination(base, cursor, "ASC", limit)

	query, args, err := paged.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, dbpage.CursorPagination{}, err
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbpage.CursorPagination{}, err
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dbpage.CursorPagination{}, err
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, dbpage.CursorPagination{}, err
	}

	hasPagination := len(ids) > limit
	ids = dbpage.PaginateRecords(cursor.ID == "", hasPagination, cursor.PointsNext, ids, limit, direction)

	users := make([]User, 0, len(ids))

	for _, id := range ids {
		u, err := r.Find(ctx, id)
		if err != nil {
			return nil, dbpage.CursorPagination{}, err
		}

		users = append(users, u)
	}

	pagination := dbpage.CursorPagination{}

	if len(ids) > 0 {
		pagination, err = dbpage.CalculateCursor(cursor.ID == "", hasPagination, cursor.PointsNext, ids[0], ids[len(ids)-1])
		if err != nil {
			return nil, dbpage.CursorPagination{}, err
		}
	}

	return users, pagination, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// RoleRepository persists Role event logs and the "roles" projection
// table, and satisfies internal/authz.RoleGrants so the Enforcer can
// resolve a role's name and granted permission sets without depending on
// this package's concrete types.
type RoleRepository struct {
	db   *sql.DB
	repo *es.Repository[Role, RoleEvent]
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	store := es.NewEventStore[RoleEvent](db, "role_events", "Role", outbox.NewRelay[RoleEvent]("outbox_events", outbox.DefaultChannel))

	return &RoleRepository{
		db:   db,
		repo: es.NewRepository(store, reduceRole, accessRoleEvents),
	}
}

func (r *RoleRepository) Create(ctx context.Context, role *Role) (Role, error) {
	created, err := r.repo.Create(ctx, role)
	if err != nil {
		return Role{}, err
	}

	if err := r.upsertProjection(ctx, &created); err != nil {
		return Role{}, err
	}

	return created, nil
}

func (r *RoleRepository) Update(ctx context.Context, role *Role) error {
	if err := r.repo.Update(ctx, role); err != nil {
		return err
	}

	return r.upsertProjection(ctx, role)
}

func (r *RoleRepository) Find(ctx context.Context, id string) (Role, error) {
	return r.repo.Find(ctx, id)
}

func (r *RoleRepository) upsertProjection(ctx context.Context, role *Role) error {
	exec := dbtx.GetExecutor(ctx, r.db)

	query, args, err := squirrel.Insert("roles").
		Columns("id", "name").
		Values(role.ID, role.Name).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)

	return err
}

// RoleNameForRole satisfies authz.RoleGrants.
func (r *RoleRepository) RoleNameForRole(ctx context.Context, roleID string) (string, error) {
	role, err := r.Find(ctx, roleID)
	if err != nil {
		return "", err
	}

	return role.Name, nil
}

// PermissionSetsForRole satisfies authz.RoleGrants.
func (r *RoleRepository) PermissionSetsForRole(ctx context.Context, roleID string) ([]string, error) {
	role, err := r.Find(ctx, roleID)
	if err != nil {
		return nil, err
	}

	return role.GrantedPermissionSets(), nil
}

// RoleForSubject satisfies authz.SubjectRoles: a subject is a UserId, so
// resolving its role means finding the user and reading its current role.
func (r *UserRepository) RoleForSubject(ctx context.Context, subjectID string) (string, error) {
	user, err := r.Find(ctx, subjectID)
	if err != nil {
		return "", err
	}

	return user.CurrentRole(), nil
}
