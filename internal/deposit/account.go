package deposit

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/es"
)

// AccountStatus is the closed set of states a DepositAccount can be in.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
	AccountFrozen   AccountStatus = "frozen"
)

// AccountEvent is the closed set of events recorded against an Account.
type AccountEvent struct {
	Type                  string          `json:"type"`
	ID                    string          `json:"id,omitempty"`
	CustomerID            string          `json:"customer_id,omitempty"`
	LedgerAccountID       string          `json:"ledger_account_id,omitempty"`
	FrozenLedgerAccountID string          `json:"frozen_ledger_account_id,omitempty"`
	Status                AccountStatus   `json:"status,omitempty"`
	AuditInfo             authz.AuditInfo `json:"audit_info"`
}

func (e AccountEvent) Kind() string { return e.Type }

const (
	AccountInitialized  = "initialized"
	AccountStatusUpdated = "status_updated"
)

// Account is a customer's deposit account: the ledger-backed balance
// Deposits credit and Withdrawals debit. Each account is paired with a
// system "frozen" account its balance moves to while the account is
// placed under a regulatory hold.
type Account struct {
	ID                    string
	CustomerID            string
	LedgerAccountID       string
	FrozenLedgerAccountID string
	Status                AccountStatus
	events                *es.EntityEvents[AccountEvent]
}

// NewAccount opens a deposit account for customerID, active unless
// active is false (mirroring the teacher's own inactive-by-default
// onboarding path for customers not yet fully verified).
func NewAccount(customerID, ledgerAccountID, frozenLedgerAccountID string, active bool, audit authz.AuditInfo) *Account {
	id := uuid.NewString()
	status := AccountInactive

	if active {
		status = AccountActive
	}

	return &Account{
		ID: id, CustomerID: customerID, LedgerAccountID: ledgerAccountID,
		FrozenLedgerAccountID: frozenLedgerAccountID, Status: status,
		events: es.NewEntityEvents(id, AccountEvent{
			Type: AccountInitialized, ID: id, CustomerID: customerID, LedgerAccountID: ledgerAccountID,
			FrozenLedgerAccountID: frozenLedgerAccountID, Status: status, AuditInfo: audit,
		}),
	}
}

// UpdateStatus moves the account to status. Idempotent: setting the same
// status twice is a no-op.
func (a *Account) UpdateStatus(status AccountStatus, audit authz.AuditInfo) es.Idempotent[AccountStatus] {
	if a.Status == status {
		return es.Ignored[AccountStatus]()
	}

	previous := a.Status
	a.Status = status
	a.events.Append(AccountEvent{Type: AccountStatusUpdated, Status: status, AuditInfo: audit})

	return es.Executed(previous)
}

// Freeze places the account under a regulatory hold. The caller is
// responsible for moving its ledger balance to FrozenLedgerAccountID; the
// entity only records the status change.
func (a *Account) Freeze(audit authz.AuditInfo) es.Idempotent[AccountStatus] {
	return a.UpdateStatus(AccountFrozen, audit)
}

// IsUsable reports whether the account may accept deposits and
// withdrawals.
func (a *Account) IsUsable() bool { return a.Status == AccountActive }

func reduceAccount(events *es.EntityEvents[AccountEvent]) (Account, error) {
	a := Account{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case AccountInitialized:
			a.ID = e.ID
			a.CustomerID = e.CustomerID
			a.LedgerAccountID = e.LedgerAccountID
			a.FrozenLedgerAccountID = e.FrozenLedgerAccountID
			a.Status = e.Status
		case AccountStatusUpdated:
			a.Status = e.Status
		}
	}

	return a, nil
}

func depositAccountEvents(a *Account) *es.EntityEvents[AccountEvent] { return a.events }
