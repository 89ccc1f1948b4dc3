package custody

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustodianRepositoryCreatePersistsEventAndProjection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewCustodianRepository(db)

	mock.ExpectExec(`INSERT INTO custodian_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO custodians`).WillReturnResult(sqlmock.NewResult(1, 1))

	custodian, err := NewCustodian("Mock Custodian", testConfig(), testEncryptionKey(), auditInfo())
	require.NoError(t, err)

	created, err := repo.Create(context.Background(), custodian)
	require.NoError(t, err)
	assert.Equal(t, "Mock Custodian", created.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustodianRepositoryFindByProviderReturnsNotFoundWhenEmpty(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewCustodianRepository(db)

	mock.ExpectQuery(`SELECT id FROM custodians WHERE provider = \$1`).
		WithArgs("bitgo").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.FindByProvider(context.Background(), CustodianProviderBitgo)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepositoryCreatePersistsEventProjectionAndOutbox(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewWalletRepository(db)

	mock.ExpectExec(`INSERT INTO wallet_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO wallets`).WillReturnResult(sqlmock.NewResult(1, 1))

	wallet := NewWallet("custodian-1", "facility-1", "customer-1", testExternalWallet(), auditInfo())

	created, err := repo.Create(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, "facility-1", created.FacilityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepositoryFindByExternalWalletIDResolvesAndLoads(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewWalletRepository(db)

	mock.ExpectQuery(`SELECT id FROM wallets WHERE external_wallet_id = \$1`).
		WithArgs("ext-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("wallet-1"))

	eventRows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"wallet-1","custodian_id":"custodian-1","facility_id":"facility-1","external_wallet_id":"ext-1"}`), clock())
	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM wallet_events`).WillReturnRows(eventRows)

	found, err := repo.FindByExternalWalletID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "facility-1", found.FacilityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
