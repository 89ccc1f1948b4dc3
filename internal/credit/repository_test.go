package credit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalRepositoryCreatePersistsEventAndProjection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewProposalRepository(db)

	mock.ExpectExec(`INSERT INTO credit_facility_proposal_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO credit_facility_proposals`).WillReturnResult(sqlmock.NewResult(1, 1))

	proposal, _ := NewCreditFacilityProposal("customer-1", 1_000_00, testTerms(), auditInfo())

	created, err := repo.Create(context.Background(), proposal)
	require.NoError(t, err)
	assert.Equal(t, "customer-1", created.CustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepositoryFindRehydratesFromEvents(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewProposalRepository(db)

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"p-1","customer_id":"customer-1","amount":100000}`), clock())

	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_facility_proposal_events`).WillReturnRows(rows)

	found, err := repo.Find(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "customer-1", found.CustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacilityRepositoryCreatePersistsEventAndProjection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewFacilityRepository(db)

	mock.ExpectExec(`INSERT INTO credit_facility_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO credit_facilities`).WillReturnResult(sqlmock.NewResult(1, 1))

	facility := NewCreditFacility(completedProposal(t), testAccounts(), auditInfo())

	created, err := repo.Create(context.Background(), facility)
	require.NoError(t, err)
	assert.Equal(t, facility.CustomerID, created.CustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObligationRepositoryCreatePersistsEventAndProjection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewObligationRepository(db)

	mock.ExpectExec(`INSERT INTO credit_obligation_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO credit_obligations`).WillReturnResult(sqlmock.NewResult(1, 1))

	obligation := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, testTerms(), clock(), auditInfo())

	created, err := repo.Create(context.Background(), obligation)
	require.NoError(t, err)
	assert.Equal(t, "facility-1", created.FacilityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacilityRepositoryListByStatusScansIDs(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewFacilityRepository(db)

	rows := sqlmock.NewRows([]string{"id"}).AddRow("facility-1").AddRow("facility-2")
	mock.ExpectQuery(`SELECT id FROM credit_facilities WHERE status = \$1`).
		WithArgs(string(FacilityActivatedStatus)).
		WillReturnRows(rows)

	ids, err := repo.ListByStatus(context.Background(), FacilityActivatedStatus)
	require.NoError(t, err)
	assert.Equal(t, []string{"facility-1", "facility-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObligationRepositoryListByFacilityOrdersByCreatedAt(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewObligationRepository(db)

	mock.ExpectQuery(`SELECT id FROM credit_obligations WHERE facility_id = \$1 ORDER BY created_at ASC`).
		WithArgs("facility-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("obligation-1"))

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"obligation-1","facility_id":"facility-1","obligation_type":"disbursal","amount":100000}`), clock())
	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_obligation_events`).WillReturnRows(rows)

	obligations, err := repo.ListByFacility(context.Background(), "facility-1")
	require.NoError(t, err)
	require.Len(t, obligations, 1)
	assert.Equal(t, "obligation-1", obligations[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollateralRepositoryCreateHasNoOutboxStep(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewCollateralRepository(db)

	mock.ExpectExec(`INSERT INTO credit_collateral_events`).WillReturnResult(sqlmock.NewResult(1, 1))

	collateral := NewCollateral("facility-1", auditInfo())

	created, err := repo.Create(context.Background(), collateral)
	require.NoError(t, err)
	assert.Equal(t, "facility-1", created.FacilityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInterestAccrualCycleRepositoryCreateHasNoOutboxStep(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewInterestAccrualCycleRepository(db)

	mock.ExpectExec(`INSERT INTO credit_accrual_cycle_events`).WillReturnResult(sqlmock.NewResult(1, 1))

	cycle := NewInterestAccrualCycle("facility-1", auditInfo())

	created, err := repo.Create(context.Background(), cycle)
	require.NoError(t, err)
	assert.Equal(t, "facility-1", created.FacilityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisbursalRepositoryCreatePersistsEventAndPublishesOutbox(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewDisbursalRepository(db)

	mock.ExpectExec(`INSERT INTO credit_disbursal_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))

	disbursal, err := NewDisbursal("facility-1", 100_00, true, auditInfo())
	require.NoError(t, err)

	created, err := repo.Create(context.Background(), disbursal)
	require.NoError(t, err)
	assert.Equal(t, "facility-1", created.FacilityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLiquidationRepositoryFindRehydratesFromEvents(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewLiquidationRepository(db)

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"liquidation-1","facility_id":"facility-1"}`), clock())

	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_liquidation_events`).WillReturnRows(rows)

	found, err := repo.Find(context.Background(), "liquidation-1")
	require.NoError(t, err)
	assert.Equal(t, "facility-1", found.FacilityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstallmentRepositoryInsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewInstallmentRepository(db)

	mock.ExpectExec(`INSERT INTO credit_obligation_installments`).WillReturnResult(sqlmock.NewResult(1, 1))

	installment := NewObligationInstallment("obligation-1", "facility-1", 500_00, "tx-1")

	err = repo.Insert(context.Background(), installment)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
