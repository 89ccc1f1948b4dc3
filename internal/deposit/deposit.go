package deposit

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// DepositStatus is the closed set of states a Deposit can be in.
type DepositStatus string

const (
	DepositConfirmed DepositStatus = "confirmed"
	DepositReverted  DepositStatus = "reverted"
)

// DepositEvent is the closed set of events recorded against a Deposit.
type DepositEvent struct {
	Type          string          `json:"type"`
	ID            string          `json:"id,omitempty"`
	AccountID     string          `json:"account_id,omitempty"`
	Amount        money.UsdCents  `json:"amount,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Status        DepositStatus   `json:"status,omitempty"`
	LedgerTxID    string          `json:"ledger_tx_id,omitempty"`
	AuditInfo     authz.AuditInfo `json:"audit_info"`
}

func (e DepositEvent) Kind() string { return e.Type }

const (
	DepositInitialized       = "initialized"
	DepositRevertedEvent     = "reverted"
	DepositStatusUpdated     = "status_updated"
)

// Deposit credits funds into a DepositAccount. It confirms immediately on
// creation: unlike a Withdrawal, a deposit needs no approval process, only
// the ledger posting that backs it. Reversal is the only further
// transition it can take.
type Deposit struct {
	ID         string
	AccountID  string
	Amount     money.UsdCents
	Reference  string
	Status     DepositStatus
	LedgerTxID string
	events     *es.EntityEvents[DepositEvent]
}

// NewDeposit records amount credited to accountID via ledgerTxID. amount
// must be nonzero; reference defaults to the deposit's own id when empty.
func NewDeposit(accountID string, amount money.UsdCents, reference, ledgerTxID string, audit authz.AuditInfo) (*Deposit, error) {
	if amount.IsZero() {
		return nil, apperr.InvariantViolation("Deposit", "deposit amount cannot be zero")
	}

	id := uuid.NewString()

	if reference == "" {
		reference = id
	}

	return &Deposit{
		ID: id, AccountID: accountID, Amount: amount, Reference: reference,
		Status: DepositConfirmed, LedgerTxID: ledgerTxID,
		events: es.NewEntityEvents(id, DepositEvent{
			Type: DepositInitialized, ID: id, AccountID: accountID, Amount: amount,
			Reference: reference, Status: DepositConfirmed, LedgerTxID: ledgerTxID, AuditInfo: audit,
		}),
	}, nil
}

// Revert records the reversing ledger transaction and moves the deposit
// to Reverted. Idempotent: reverting an already-reverted deposit is a
// no-op, regardless of the reversing transaction id passed, since a
// deposit is reverted at most once.
func (d *Deposit) Revert(reversingLedgerTxID string, audit authz.AuditInfo) es.Idempotent[struct{}] {
	if d.Status == DepositReverted {
		return es.Ignored[struct{}]()
	}

	d.Status = DepositReverted
	d.events.Append(DepositEvent{Type: DepositRevertedEvent, LedgerTxID: reversingLedgerTxID, AuditInfo: audit})
	d.events.Append(DepositEvent{Type: DepositStatusUpdated, Status: DepositReverted, AuditInfo: audit})

	return es.Executed(struct{}{})
}

func reduceDeposit(events *es.EntityEvents[DepositEvent]) (Deposit, error) {
	d := Deposit{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case DepositInitialized:
			d.ID = e.ID
			d.AccountID = e.AccountID
			d.Amount = e.Amount
			d.Reference = e.Reference
			d.Status = e.Status
			d.LedgerTxID = e.LedgerTxID
		case DepositStatusUpdated:
			d.Status = e.Status
		}
	}

	return d, nil
}

func depositEvents(d *Deposit) *es.EntityEvents[DepositEvent] { return d.events }
