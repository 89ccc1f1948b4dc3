package credit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisbursalRequiresActivatedFacility(t *testing.T) {
	_, err := NewDisbursal("facility-1", 100_00, false, auditInfo())
	assert.Error(t, err)

	disbursal, err := NewDisbursal("facility-1", 100_00, true, auditInfo())
	require.NoError(t, err)
	assert.Equal(t, DisbursalNew, disbursal.Status)
}

func TestDisbursalSettleRequiresApproval(t *testing.T) {
	disbursal, err := NewDisbursal("facility-1", 100_00, true, auditInfo())
	require.NoError(t, err)

	_, err = disbursal.Settle("tx-1", "obligation-1", auditInfo())
	assert.Error(t, err)

	_, err = disbursal.ConcludeApprovalProcess(true)
	require.NoError(t, err)

	result, err := disbursal.Settle("tx-1", "obligation-1", auditInfo())
	require.NoError(t, err)
	assert.True(t, result.IsExecuted())
	assert.Equal(t, DisbursalSettled, disbursal.Status)
}

func TestDisbursalSettleIsIdempotentOnSameLedgerTx(t *testing.T) {
	disbursal, err := NewDisbursal("facility-1", 100_00, true, auditInfo())
	require.NoError(t, err)

	_, err = disbursal.ConcludeApprovalProcess(true)
	require.NoError(t, err)

	_, err = disbursal.Settle("tx-1", "obligation-1", auditInfo())
	require.NoError(t, err)

	result, err := disbursal.Settle("tx-1", "obligation-1", auditInfo())
	require.NoError(t, err)
	assert.False(t, result.IsExecuted())

	_, err = disbursal.Settle("tx-2", "obligation-1", auditInfo())
	assert.Error(t, err)
}

func TestDisbursalConcludeApprovalProcessDeniedBlocksSettle(t *testing.T) {
	disbursal, err := NewDisbursal("facility-1", 100_00, true, auditInfo())
	require.NoError(t, err)

	_, err = disbursal.ConcludeApprovalProcess(false)
	require.NoError(t, err)
	assert.Equal(t, DisbursalDenied, disbursal.Status)

	_, err = disbursal.Settle("tx-1", "obligation-1", auditInfo())
	assert.Error(t, err)
}

func TestReduceDisbursalRehydratesFromEvents(t *testing.T) {
	seed, err := NewDisbursal("facility-1", 100_00, true, auditInfo())
	require.NoError(t, err)
	seed.events.MarkPersisted(clock())

	_, err = seed.ConcludeApprovalProcess(true)
	require.NoError(t, err)
	seed.events.MarkPersisted(clock())

	_, err = seed.Settle("tx-1", "obligation-1", auditInfo())
	require.NoError(t, err)

	rehydrated, err := reduceDisbursal(seed.events)
	require.NoError(t, err)
	assert.Equal(t, DisbursalSettled, rehydrated.Status)
	assert.Equal(t, "tx-1", rehydrated.LedgerTxID)
	assert.Equal(t, "obligation-1", rehydrated.ObligationID)
}
