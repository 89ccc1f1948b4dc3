package custody

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// WalletEvent is the closed set of events recorded against a Wallet.
type WalletEvent struct {
	Type              string          `json:"type"`
	ID                string          `json:"id,omitempty"`
	CustodianID       string          `json:"custodian_id,omitempty"`
	FacilityID        string          `json:"facility_id,omitempty"`
	CustomerID        string          `json:"customer_id,omitempty"`
	ExternalWalletID  string          `json:"external_wallet_id,omitempty"`
	Address           string          `json:"address,omitempty"`
	Network           WalletNetwork   `json:"network,omitempty"`
	CustodianResponse json.RawMessage `json:"custodian_response,omitempty"`
	Balance           money.Satoshis  `json:"balance,omitempty"`
	ChangedAt         time.Time       `json:"changed_at,omitempty"`
	AuditInfo         authz.AuditInfo `json:"audit_info"`
}

func (e WalletEvent) Kind() string { return e.Type }

const (
	WalletInitialized = "initialized"

	// WalletBalanceChanged is also the wire event type internal/credit's
	// outbox reactor matches on to sync a facility's Collateral; the two
	// packages agree on this string without importing each other.
	WalletBalanceChanged = "wallet_balance_changed"
)

// Wallet is one bitcoin wallet a Custodian opened on behalf of a credit
// facility's collateral. Its balance is updated through internal/custody's
// service, either from the custodian's webhook notifications
// (HandleWebhook) or by an operator via ManualUpdateWalletBalance.
type Wallet struct {
	ID               string
	CustodianID      string
	FacilityID       string
	CustomerID       string
	ExternalWalletID string
	Address          string
	Network          WalletNetwork
	Balance          money.Satoshis
	events           *es.EntityEvents[WalletEvent]
}

// NewWallet starts a Wallet for facilityID/customerID, already carrying
// the external wallet details the custodian returned when initializing
// it; unlike the Rust core's two-step "initialize then attach", this
// provider call is made synchronously before the entity is ever
// constructed, so there is exactly one event to persist rather than an
// initialize/attach pair.
func NewWallet(custodianID, facilityID, customerID string, external ExternalWallet, audit authz.AuditInfo) *Wallet {
	id := uuid.NewString()

	return &Wallet{
		ID: id, CustodianID: custodianID, FacilityID: facilityID, CustomerID: customerID,
		ExternalWalletID: external.ExternalID, Address: external.Address, Network: external.Network,
		events: es.NewEntityEvents(id, WalletEvent{
			Type: WalletInitialized, ID: id, CustodianID: custodianID, FacilityID: facilityID,
			CustomerID: customerID, ExternalWalletID: external.ExternalID, Address: external.Address,
			Network: external.Network, CustodianResponse: external.FullResponse, AuditInfo: audit,
		}),
	}
}

// UpdateBalance records the custodian's latest reported balance.
// Idempotent on repeated identical balances, since a webhook may be
// redelivered: mirrors wallet/entity.rs's update_balance, which checks
// the most recently recorded BalanceChanged event for the same value
// before appending a new one.
func (w *Wallet) UpdateBalance(newBalance money.Satoshis, changedAt time.Time, audit authz.AuditInfo) es.Idempotent[money.Satoshis] {
	if w.Balance == newBalance && w.hasBalanceChanged() {
		return es.Ignored[money.Satoshis]()
	}

	previous := w.Balance
	w.Balance = newBalance
	w.events.Append(WalletEvent{
		Type: WalletBalanceChanged, FacilityID: w.FacilityID, Balance: newBalance, ChangedAt: changedAt, AuditInfo: audit,
	})

	return es.Executed(previous)
}

func (w *Wallet) hasBalanceChanged() bool {
	for _, e := range w.events.All() {
		if e.Type == WalletBalanceChanged {
			return true
		}
	}

	return false
}

func reduceWallet(events *es.EntityEvents[WalletEvent]) (Wallet, error) {
	w := Wallet{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case WalletInitialized:
			w.ID = e.ID
			w.CustodianID = e.CustodianID
			w.FacilityID = e.FacilityID
			w.CustomerID = e.CustomerID
			w.ExternalWalletID = e.ExternalWalletID
			w.Address = e.Address
			w.Network = e.Network
		case WalletBalanceChanged:
			w.Balance = e.Balance
		}
	}

	return w, nil
}

func walletEvents(w *Wallet) *es.EntityEvents[WalletEvent] { return w.events }
