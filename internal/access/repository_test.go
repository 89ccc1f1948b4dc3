package access

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepositoryCreatePersistsEventAndProjection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO user_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(1, 1))

	user := NewUser("a@example.com", "role-1", auditInfo())

	created, err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", created.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindRehydratesFromEvents(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"u-1","email":"a@example.com","role_id":"role-1"}`), clock())

	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM user_events`).WillReturnRows(rows)

	found, err := repo.Find(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", found.Email)
	assert.Equal(t, "role-1", found.CurrentRole())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryCreatePersistsEventAndProjection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewRoleRepository(db)

	mock.ExpectExec(`INSERT INTO role_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO roles`).WillReturnResult(sqlmock.NewResult(1, 1))

	role := NewRole("loan officer", auditInfo())

	created, err := repo.Create(context.Background(), role)
	require.NoError(t, err)
	assert.Equal(t, "loan officer", created.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryGrantLookups(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewRoleRepository(db)

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"role-1","name":"loan officer"}`), clock()).
		AddRow(2, []byte(`{"type":"permission_set_added","permission_set":"access_viewer"}`), clock())

	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM role_events`).WillReturnRows(rows)

	name, err := repo.RoleNameForRole(context.Background(), "role-1")
	require.NoError(t, err)
	assert.Equal(t, "loan officer", name)
}
