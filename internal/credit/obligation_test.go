package credit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstarcredit/core/pkg/money"
)

func TestNewObligationComputesThresholdsFromTerms(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	terms := testTerms()
	obligation := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, terms, createdAt, auditInfo())

	assert.Equal(t, ObligationNotYetDue, obligation.Status)
	assert.Equal(t, createdAt, obligation.DueAt)
	assert.Equal(t, createdAt.Add(terms.ObligationOverdueAfter), obligation.OverdueAt)
	assert.Equal(t, createdAt.Add(terms.ObligationLiquidationAfter), obligation.LiquidationAt)
	assert.Equal(t, createdAt.Add(terms.ObligationDefaultedAfter), obligation.DefaultedAt)
	assert.EqualValues(t, 1_000_00, obligation.Outstanding)
}

func TestAdvanceStatusMovesForwardMonotonically(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	terms := testTerms()
	obligation := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, terms, createdAt, auditInfo())

	result := obligation.AdvanceStatus(createdAt.Add(-time.Minute))
	assert.False(t, result.IsExecuted())

	result = obligation.AdvanceStatus(createdAt)
	assert.True(t, result.IsExecuted())
	assert.Equal(t, ObligationDue, obligation.Status)

	result = obligation.AdvanceStatus(createdAt)
	assert.False(t, result.IsExecuted())

	result = obligation.AdvanceStatus(obligation.OverdueAt)
	assert.True(t, result.IsExecuted())
	assert.Equal(t, ObligationOverdue, obligation.Status)

	result = obligation.AdvanceStatus(obligation.DefaultedAt)
	assert.True(t, result.IsExecuted())
	assert.Equal(t, ObligationDefaulted, obligation.Status)

	result = obligation.AdvanceStatus(obligation.DefaultedAt.Add(time.Hour))
	assert.False(t, result.IsExecuted())
}

func TestAdvanceStatusIsNoOpOnceLiquidationStarted(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	obligation := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, testTerms(), createdAt, auditInfo())

	_, err := obligation.StartLiquidation()
	require.NoError(t, err)

	result := obligation.AdvanceStatus(obligation.DefaultedAt.Add(time.Hour))
	assert.False(t, result.IsExecuted())
	assert.Equal(t, ObligationNotYetDue, obligation.Status)
}

func TestStartLiquidationIsIdempotent(t *testing.T) {
	obligation := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, testTerms(), clock(), auditInfo())

	result, err := obligation.StartLiquidation()
	require.NoError(t, err)
	assert.True(t, result.IsExecuted())

	result, err = obligation.StartLiquidation()
	require.NoError(t, err)
	assert.False(t, result.IsExecuted())
}

func TestStartLiquidationRejectsTerminalObligation(t *testing.T) {
	obligation := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, testTerms(), clock(), auditInfo())

	obligation.ApplyInstallment("installment-1", 1_000_00, auditInfo())
	assert.Equal(t, ObligationPaid, obligation.Status)

	_, err := obligation.StartLiquidation()
	assert.Error(t, err)
}

func TestApplyInstallmentAbsorbsUpToOutstanding(t *testing.T) {
	obligation := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, testTerms(), clock(), auditInfo())

	consumed := obligation.ApplyInstallment("installment-1", 400_00, auditInfo())
	assert.EqualValues(t, 400_00, consumed)
	assert.EqualValues(t, 600_00, obligation.Outstanding)
	assert.Equal(t, ObligationNotYetDue, obligation.Status)

	consumed = obligation.ApplyInstallment("installment-2", 900_00, auditInfo())
	assert.EqualValues(t, 600_00, consumed)
	assert.EqualValues(t, 0, obligation.Outstanding)
	assert.Equal(t, ObligationPaid, obligation.Status)
}

func TestApplyInstallmentIsNoOpWhenAlreadyPaid(t *testing.T) {
	obligation := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, testTerms(), clock(), auditInfo())

	obligation.ApplyInstallment("installment-1", 1_000_00, auditInfo())

	consumed := obligation.ApplyInstallment("installment-2", 500_00, auditInfo())
	assert.EqualValues(t, money.UsdCents(0), consumed)
}

func TestReduceObligationRehydratesFromEvents(t *testing.T) {
	seed := NewObligation("facility-1", ObligationTypeDisbursal, 1_000_00, testTerms(), clock(), auditInfo())
	seed.events.MarkPersisted(clock())

	seed.ApplyInstallment("installment-1", 1_000_00, auditInfo())

	rehydrated, err := reduceObligation(seed.events)
	require.NoError(t, err)
	assert.Equal(t, seed.ID, rehydrated.ID)
	assert.Equal(t, ObligationPaid, rehydrated.Status)
	assert.EqualValues(t, 0, rehydrated.Outstanding)
}
