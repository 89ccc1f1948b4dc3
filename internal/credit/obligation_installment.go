package credit

import (
	"time"

	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/money"
)

// ObligationInstallment is one append-only record of a payment allocated
// against a single Obligation. Unlike the event-sourced aggregates in
// this package, an installment is never mutated once recorded — it is
// the ledger-adjacent audit trail of exactly how one incoming payment was
// split across obligations, not an entity with its own lifecycle.
type ObligationInstallment struct {
	ID              string
	ObligationID    string
	FacilityID      string
	Amount          money.UsdCents
	LedgerTxID      string
	RecordedAt      time.Time
}

// NewObligationInstallment records that amount of a payment identified by
// ledgerTxID was applied to obligationID.
func NewObligationInstallment(obligationID, facilityID string, amount money.UsdCents, ledgerTxID string) ObligationInstallment {
	return ObligationInstallment{
		ID: uuid.NewString(), ObligationID: obligationID, FacilityID: facilityID,
		Amount: amount, LedgerTxID: ledgerTxID, RecordedAt: clock(),
	}
}

// allocateInstallment runs the installment allocation algorithm: given a
// payment amount and obligations in creation order, it absorbs the
// payment sequentially into each obligation's outstanding balance,
// oldest first, until the payment is exhausted or every obligation is
// paid off. It returns the installment records produced (one per
// obligation that absorbed a nonzero amount) and however much of the
// payment could not be allocated because every obligation was already
// paid in full.
func allocateInstallment(obligations []*Obligation, facilityID, ledgerTxID string, amount money.UsdCents, audit authz.AuditInfo) ([]ObligationInstallment, money.UsdCents) {
	var records []ObligationInstallment

	remaining := amount

	for _, ob := range obligations {
		if remaining.IsZero() {
			break
		}

		consumed := ob.ApplyInstallment(ledgerTxID, remaining, audit)
		if consumed.IsZero() {
			continue
		}

		records = append(records, NewObligationInstallment(ob.ID, facilityID, consumed, ledgerTxID))
		remaining -= consumed
	}

	return records, remaining
}
