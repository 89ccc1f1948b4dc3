package credit

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// LiquidationStatus is the closed lifecycle of a LiquidationProcess.
type LiquidationStatus string

const (
	LiquidationStarted  LiquidationStatus = "started"
	LiquidationCompleted LiquidationStatus = "completed"
)

// LiquidationEvent is the closed set of events recorded against a
// LiquidationProcess.
type LiquidationEvent struct {
	Type           string          `json:"type"`
	ID             string          `json:"id,omitempty"`
	FacilityID     string          `json:"facility_id,omitempty"`
	CollateralSold money.Satoshis  `json:"collateral_sold,omitempty"`
	ProceedsUSD    money.UsdCents  `json:"proceeds_usd,omitempty"`
	LedgerTxID     string          `json:"ledger_tx_id,omitempty"`
	AuditInfo      authz.AuditInfo `json:"audit_info"`
}

func (e LiquidationEvent) Kind() string { return e.Type }

const (
	LiquidationInitialized = "initialized"
	LiquidationCompletedEvent = "completed"
)

// LiquidationProcess sells a facility's collateral against its
// outstanding obligations once the facility's CVL has fallen through
// Terms.LiquidationCVL. It may start before any obligation reaches
// Defaulted — obligation status and liquidation are two independent
// triggers on the same collateral shortfall, and liquidation starting
// first takes precedence (see Obligation.StartLiquidation).
type LiquidationProcess struct {
	ID           string
	FacilityID   string
	Status       LiquidationStatus
	CollateralSold money.Satoshis
	ProceedsUSD  money.UsdCents
	LedgerTxID   string
	events       *es.EntityEvents[LiquidationEvent]
}

// StartLiquidationProcess begins liquidating facilityID's collateral.
func StartLiquidationProcess(facilityID string, audit authz.AuditInfo) *LiquidationProcess {
	id := uuid.NewString()

	return &LiquidationProcess{
		ID: id, FacilityID: facilityID, Status: LiquidationStarted,
		events: es.NewEntityEvents(id, LiquidationEvent{
			Type: LiquidationInitialized, ID: id, FacilityID: facilityID, AuditInfo: audit,
		}),
	}
}

// Complete records the collateral sold, USD proceeds, and the ledger
// transaction posting those proceeds against the facility's obligations.
// Idempotent: completing an already-completed process with the same
// ledger transaction ID is a no-op.
func (l *LiquidationProcess) Complete(collateralSold money.Satoshis, proceedsUSD money.UsdCents, ledgerTxID string, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if l.Status == LiquidationCompleted {
		if l.LedgerTxID == ledgerTxID {
			return es.Ignored[struct{}](), nil
		}

		return es.Ignored[struct{}](), apperr.InvariantViolation("LiquidationProcess",
			"process %s already completed", l.ID)
	}

	l.events.Append(LiquidationEvent{
		Type: LiquidationCompletedEvent, CollateralSold: collateralSold, ProceedsUSD: proceedsUSD,
		LedgerTxID: ledgerTxID, AuditInfo: audit,
	})
	l.Status = LiquidationCompleted
	l.CollateralSold = collateralSold
	l.ProceedsUSD = proceedsUSD
	l.LedgerTxID = ledgerTxID

	return es.Executed(struct{}{}), nil
}

func reduceLiquidation(events *es.EntityEvents[LiquidationEvent]) (LiquidationProcess, error) {
	l := LiquidationProcess{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case LiquidationInitialized:
			l.ID = e.ID
			l.FacilityID = e.FacilityID
			l.Status = LiquidationStarted
		case LiquidationCompletedEvent:
			l.Status = LiquidationCompleted
			l.CollateralSold = e.CollateralSold
			l.ProceedsUSD = e.ProceedsUSD
			l.LedgerTxID = e.LedgerTxID
		}
	}

	return l, nil
}

func creditLiquidationEvents(l *LiquidationProcess) *es.EntityEvents[LiquidationEvent] { return l.events }
