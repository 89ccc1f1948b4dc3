package credit

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/internal/ledgeradapter"
	"github.com/northstarcredit/core/pkg/apperr"
)

// fakeAuthzStore satisfies both authz.SubjectRoles and authz.RoleGrants with
// an in-memory subject/role/grant map, so Service's enforcement logic can be
// exercised without internal/access's event-sourced store.
type fakeAuthzStore struct {
	subjectRole map[string]string
	roleName    map[string]string
	roleGrants  map[string][]string
}

func newFakeAuthzStore() *fakeAuthzStore {
	return &fakeAuthzStore{subjectRole: map[string]string{}, roleName: map[string]string{}, roleGrants: map[string][]string{}}
}

func (f *fakeAuthzStore) RoleForSubject(ctx context.Context, subjectID string) (string, error) {
	return f.subjectRole[subjectID], nil
}

func (f *fakeAuthzStore) RoleNameForRole(ctx context.Context, roleID string) (string, error) {
	return f.roleName[roleID], nil
}

func (f *fakeAuthzStore) PermissionSetsForRole(ctx context.Context, roleID string) ([]string, error) {
	return f.roleGrants[roleID], nil
}

func (f *fakeAuthzStore) grant(subjectID, roleID string, sets ...string) {
	f.subjectRole[subjectID] = roleID
	f.roleGrants[roleID] = sets
}

// fakeApprovals satisfies credit.ApprovalProcessStarter without internal/governance.
type fakeApprovals struct{}

func (fakeApprovals) StartApprovalProcess(ctx context.Context, kind, entityID string) (string, error) {
	return "process-" + entityID, nil
}

// fakeLedger satisfies ledgeradapter.Ledger without internal/ledgeradapter's
// HTTP client.
type fakeLedger struct{ nextTxID string }

func (f *fakeLedger) PostTransaction(ctx context.Context, req ledgeradapter.TransactionRequest) (string, error) {
	return f.nextTxID, nil
}

func newTestCreditService(t *testing.T) (*Service, sqlmock.Sqlmock, *fakeAuthzStore) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authzStore := newFakeAuthzStore()
	enforcer := authz.NewEnforcer(authzStore, authzStore)

	svc := NewService(
		db,
		NewProposalRepository(db),
		NewFacilityRepository(db),
		NewCollateralRepository(db),
		NewObligationRepository(db),
		NewInterestAccrualCycleRepository(db),
		NewDisbursalRepository(db),
		NewLiquidationRepository(db),
		NewInstallmentRepository(db),
		&fakeLedger{nextTxID: "tx-1"},
		nil,
		fakeApprovals{},
		enforcer,
	)

	return svc, mock, authzStore
}

func TestCreateProposalDeniedWithoutWriterGrant(t *testing.T) {
	svc, _, authzStore := newTestCreditService(t)
	authzStore.grant("caller-1", "role-viewer", string(authz.PermissionSetCreditViewer))

	_, err := svc.CreateProposal(context.Background(), authz.UserSubject("caller-1"), "customer-1", 1_000_00, testTerms())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuthorizationDenied))
}

func TestCreateProposalPersistsCollateralAndProposalInOneTransaction(t *testing.T) {
	svc, mock, authzStore := newTestCreditService(t)
	authzStore.grant("caller-1", "role-writer", string(authz.PermissionSetCreditWriter))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO credit_collateral_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO credit_facility_proposal_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO credit_facility_proposal_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(2))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO credit_facility_proposals`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	proposal, err := svc.CreateProposal(context.Background(), authz.UserSubject("caller-1"), "customer-1", 1_000_00, testTerms())
	require.NoError(t, err)
	assert.Equal(t, "customer-1", proposal.CustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalReadDeniedWithoutAnyGrant(t *testing.T) {
	svc, _, _ := newTestCreditService(t)

	_, err := svc.Proposal(context.Background(), authz.UserSubject("stranger"), "p-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuthorizationDenied))
}

func TestApproveFacilityIsSystemTriggeredAndSkipsEnforcement(t *testing.T) {
	svc, mock, _ := newTestCreditService(t)

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"facility-1","customer_id":"customer-1","status":"initialized"}`), clock())
	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_facility_events`).WillReturnRows(rows)

	mock.ExpectExec(`INSERT INTO credit_facility_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(2))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO credit_facilities`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := svc.ApproveFacility(context.Background(), "facility-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleDisbursalPostsLedgerEntryAndActivatesFacility(t *testing.T) {
	svc, mock, _ := newTestCreditService(t)

	disbursalRows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"disbursal-1","facility_id":"facility-1","amount":100000,"status":"new"}`), clock()).
		AddRow(2, []byte(`{"type":"approval_process_concluded","approved":true}`), clock())
	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_disbursal_events`).WillReturnRows(disbursalRows)

	facilityRows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"facility-1","customer_id":"customer-1","status":"initialized"}`), clock()).
		AddRow(2, []byte(`{"type":"status_updated","status":"approved"}`), clock())
	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_facility_events`).WillReturnRows(facilityRows)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO credit_obligation_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO credit_obligations`).WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec(`INSERT INTO credit_disbursal_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(2))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec(`INSERT INTO credit_facility_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(3))
	mock.ExpectExec(`SELECT pg_notify`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO credit_facilities`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := svc.SettleDisbursal(context.Background(), "disbursal-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleDisbursalIsNoOpWhenAlreadySettled(t *testing.T) {
	svc, mock, _ := newTestCreditService(t)

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","id":"disbursal-1","facility_id":"facility-1","amount":100000,"status":"new"}`), clock()).
		AddRow(2, []byte(`{"type":"settled","ledger_tx_id":"tx-1","obligation_id":"obligation-1"}`), clock())
	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_disbursal_events`).WillReturnRows(rows)

	err := svc.SettleDisbursal(context.Background(), "disbursal-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
