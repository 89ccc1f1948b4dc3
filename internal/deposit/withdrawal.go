package deposit

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// WithdrawalStatus is the closed lifecycle a Withdrawal moves through.
type WithdrawalStatus string

const (
	WithdrawalPendingApproval     WithdrawalStatus = "pending_approval"
	WithdrawalPendingConfirmation WithdrawalStatus = "pending_confirmation"
	WithdrawalConfirmed           WithdrawalStatus = "confirmed"
	WithdrawalDenied              WithdrawalStatus = "denied"
	WithdrawalCancelled           WithdrawalStatus = "cancelled"
	WithdrawalReverted            WithdrawalStatus = "reverted"
)

// WithdrawalEvent is the closed set of events recorded against a
// Withdrawal.
type WithdrawalEvent struct {
	Type              string           `json:"type"`
	ID                string           `json:"id,omitempty"`
	AccountID         string           `json:"account_id,omitempty"`
	Amount            money.UsdCents   `json:"amount,omitempty"`
	Reference         string           `json:"reference,omitempty"`
	ApprovalProcessID string           `json:"approval_process_id,omitempty"`
	Approved          bool             `json:"approved,omitempty"`
	Status            WithdrawalStatus `json:"status,omitempty"`
	LedgerTxID        string           `json:"ledger_tx_id,omitempty"`
	AuditInfo         authz.AuditInfo  `json:"audit_info"`
}

func (e WithdrawalEvent) Kind() string { return e.Type }

const (
	WithdrawalInitialized              = "initialized"
	WithdrawalApprovalProcessConcluded = "approval_process_concluded"
	WithdrawalConfirmedEvent           = "confirmed"
	WithdrawalCancelledEvent           = "cancelled"
	WithdrawalRevertedEvent            = "reverted"
)

// Withdrawal debits a DepositAccount once a governance approval process
// clears it. Its status machine is
// PendingApproval -> (approved) PendingConfirmation -> Confirmed -> (optional) Reverted
// PendingApproval -> (denied) Denied
// PendingApproval|PendingConfirmation -> Cancelled
type Withdrawal struct {
	ID                string
	AccountID         string
	Amount            money.UsdCents
	Reference         string
	ApprovalProcessID string
	Status            WithdrawalStatus
	LedgerTxID        string
	CancelledTxID     string
	events            *es.EntityEvents[WithdrawalEvent]
}

// NewWithdrawal starts a withdrawal of amount from accountID, gated on
// approvalProcessID. amount must be nonzero; reference defaults to the
// withdrawal's own id when empty.
func NewWithdrawal(accountID string, amount money.UsdCents, reference, approvalProcessID string, audit authz.AuditInfo) (*Withdrawal, error) {
	if amount.IsZero() {
		return nil, apperr.InvariantViolation("Withdrawal", "withdrawal amount cannot be zero")
	}

	id := uuid.NewString()

	if reference == "" {
		reference = id
	}

	return &Withdrawal{
		ID: id, AccountID: accountID, Amount: amount, Reference: reference,
		ApprovalProcessID: approvalProcessID, Status: WithdrawalPendingApproval,
		events: es.NewEntityEvents(id, WithdrawalEvent{
			Type: WithdrawalInitialized, ID: id, AccountID: accountID, Amount: amount, Reference: reference,
			ApprovalProcessID: approvalProcessID, Status: WithdrawalPendingApproval, AuditInfo: audit,
		}),
	}, nil
}

// ConcludeApprovalProcess records governance's verdict, moving the
// withdrawal to PendingConfirmation if approved or Denied otherwise.
// Idempotent: a withdrawal's approval process concludes exactly once.
func (w *Withdrawal) ConcludeApprovalProcess(approved bool, audit authz.AuditInfo) es.Idempotent[struct{}] {
	if w.Status != WithdrawalPendingApproval {
		return es.Ignored[struct{}]()
	}

	status := WithdrawalDenied
	if approved {
		status = WithdrawalPendingConfirmation
	}

	w.Status = status
	w.events.Append(WithdrawalEvent{
		Type: WithdrawalApprovalProcessConcluded, ApprovalProcessID: w.ApprovalProcessID,
		Approved: approved, Status: status, AuditInfo: audit,
	})

	return es.Executed(struct{}{})
}

// Confirm posts the debit to the ledger, requiring the withdrawal to have
// already been approved.
func (w *Withdrawal) Confirm(ledgerTxID string, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if w.Status == WithdrawalConfirmed {
		return es.Ignored[struct{}](), nil
	}

	if w.Status == WithdrawalCancelled {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Withdrawal", "withdrawal %s already cancelled", w.ID)
	}

	if w.Status != WithdrawalPendingConfirmation {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Withdrawal",
			"withdrawal %s requires approval before it can confirm (status=%s)", w.ID, w.Status)
	}

	w.Status = WithdrawalConfirmed
	w.LedgerTxID = ledgerTxID
	w.events.Append(WithdrawalEvent{Type: WithdrawalConfirmedEvent, LedgerTxID: ledgerTxID, Status: WithdrawalConfirmed, AuditInfo: audit})

	return es.Executed(struct{}{}), nil
}

// Cancel withdraws the request before it settles. Valid from
// PendingApproval or PendingConfirmation only.
func (w *Withdrawal) Cancel(ledgerTxID string, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if w.Status == WithdrawalCancelled {
		return es.Ignored[struct{}](), nil
	}

	if w.Status == WithdrawalConfirmed || w.Status == WithdrawalReverted {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Withdrawal",
			"withdrawal %s already confirmed, cannot cancel", w.ID)
	}

	w.Status = WithdrawalCancelled
	w.CancelledTxID = ledgerTxID
	w.events.Append(WithdrawalEvent{Type: WithdrawalCancelledEvent, LedgerTxID: ledgerTxID, Status: WithdrawalCancelled, AuditInfo: audit})

	return es.Executed(struct{}{}), nil
}

// Revert records the reversing ledger transaction for a confirmed
// withdrawal. Ignored (not an error) if the withdrawal is cancelled or
// already reverted; refused if it was never confirmed.
func (w *Withdrawal) Revert(reversingLedgerTxID string, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if w.Status == WithdrawalReverted || w.Status == WithdrawalCancelled {
		return es.Ignored[struct{}](), nil
	}

	if w.Status != WithdrawalConfirmed {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Withdrawal",
			"withdrawal %s is not confirmed, cannot revert", w.ID)
	}

	w.Status = WithdrawalReverted
	w.events.Append(WithdrawalEvent{Type: WithdrawalRevertedEvent, LedgerTxID: reversingLedgerTxID, Status: WithdrawalReverted, AuditInfo: audit})

	return es.Executed(struct{}{}), nil
}

func reduceWithdrawal(events *es.EntityEvents[WithdrawalEvent]) (Withdrawal, error) {
	w := Withdrawal{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case WithdrawalInitialized:
			w.ID = e.ID
			w.AccountID = e.AccountID
			w.Amount = e.Amount
			w.Reference = e.Reference
			w.ApprovalProcessID = e.ApprovalProcessID
			w.Status = e.Status
		case WithdrawalApprovalProcessConcluded:
			w.Status = e.Status
		case WithdrawalConfirmedEvent:
			w.Status = e.Status
			w.LedgerTxID = e.LedgerTxID
		case WithdrawalCancelledEvent:
			w.Status = e.Status
			w.CancelledTxID = e.LedgerTxID
		case WithdrawalRevertedEvent:
			w.Status = e.Status
		}
	}

	return w, nil
}

func withdrawalEvents(w *Withdrawal) *es.EntityEvents[WithdrawalEvent] { return w.events }
