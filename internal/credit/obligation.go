package credit

import (
	"time"

	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// ObligationType distinguishes what an Obligation is owed for.
type ObligationType string

const (
	ObligationTypeDisbursal ObligationType = "disbursal"
	ObligationTypeInterest  ObligationType = "interest"
)

// ObligationStatus is the closed status machine an Obligation moves
// through. Paid is reachable from every non-terminal status: a customer
// may pay an obligation off at any point before default or liquidation
// closes it out by other means.
type ObligationStatus string

const (
	ObligationNotYetDue ObligationStatus = "not_yet_due"
	ObligationDue       ObligationStatus = "due"
	ObligationOverdue   ObligationStatus = "overdue"
	ObligationDefaulted ObligationStatus = "defaulted"
	ObligationPaid      ObligationStatus = "paid"
)

func (s ObligationStatus) isTerminal() bool {
	return s == ObligationDefaulted || s == ObligationPaid
}

// ObligationEvent is the closed set of events recorded against an
// Obligation.
type ObligationEvent struct {
	Type               string          `json:"type"`
	ID                 string          `json:"id,omitempty"`
	FacilityID         string          `json:"facility_id,omitempty"`
	ObligationType     ObligationType  `json:"obligation_type,omitempty"`
	Amount             money.UsdCents  `json:"amount,omitempty"`
	DueAt              time.Time       `json:"due_at,omitempty"`
	OverdueAt          time.Time       `json:"overdue_at,omitempty"`
	LiquidationAt      time.Time       `json:"liquidation_at,omitempty"`
	DefaultedAt        time.Time       `json:"defaulted_at,omitempty"`
	Status             ObligationStatus `json:"status,omitempty"`
	PaymentApplied     money.UsdCents  `json:"payment_applied,omitempty"`
	InstallmentID      string          `json:"installment_id,omitempty"`
	AuditInfo          authz.AuditInfo `json:"audit_info"`
}

func (e ObligationEvent) Kind() string { return e.Type }

const (
	ObligationInitialized          = "initialized"
	ObligationStatusUpdated        = "status_updated"
	ObligationLiquidationStarted   = "liquidation_started"
	ObligationInstallmentRecorded  = "installment_recorded"
)

// Obligation is a single amount a facility's customer owes, created
// either as the outstanding principal of a settled Disbursal or as the
// total accrued interest a closed InterestAccrualCycle posts. Obligations
// are created in order and installments are allocated against them in
// that same creation order (see ApplyInstallment).
type Obligation struct {
	ID                string
	FacilityID        string
	ObligationType    ObligationType
	Amount            money.UsdCents
	Outstanding       money.UsdCents
	DueAt             time.Time
	OverdueAt         time.Time
	LiquidationAt     time.Time
	DefaultedAt       time.Time
	Status            ObligationStatus
	LiquidationStarted bool
	CreatedAt         time.Time
	events            *es.EntityEvents[ObligationEvent]
}

// NewObligation creates an Obligation of amount against facilityID,
// computing its due-date thresholds from terms relative to createdAt
// (the moment the underlying disbursal settled or the accrual cycle
// closed).
func NewObligation(facilityID string, obligationType ObligationType, amount money.UsdCents, terms Terms, createdAt time.Time, audit authz.AuditInfo) *Obligation {
	id := uuid.NewString()
	dueAt := createdAt
	overdueAt := dueAt.Add(terms.ObligationOverdueAfter)
	liquidationAt := dueAt.Add(terms.ObligationLiquidationAfter)
	defaultedAt := dueAt.Add(terms.ObligationDefaultedAfter)

	return &Obligation{
		ID: id, FacilityID: facilityID, ObligationType: obligationType,
		Amount: amount, Outstanding: amount, DueAt: dueAt, OverdueAt: overdueAt,
		LiquidationAt: liquidationAt, DefaultedAt: defaultedAt, Status: ObligationNotYetDue,
		events: es.NewEntityEvents(id, ObligationEvent{
			Type: ObligationInitialized, ID: id, FacilityID: facilityID, ObligationType: obligationType,
			Amount: amount, DueAt: dueAt, OverdueAt: overdueAt, LiquidationAt: liquidationAt,
			DefaultedAt: defaultedAt, AuditInfo: audit,
		}),
	}
}

// AdvanceStatus moves the obligation forward through
// NotYetDue -> Due -> Overdue -> Defaulted as now crosses its thresholds.
// It never moves an obligation backward and is a no-op once the
// obligation is terminal (Paid or Defaulted) or once liquidation has
// started against it: per the platform's liquidation-precedes-default
// rule, an obligation already being liquidated does not also get swept
// into Defaulted by the status job.
func (o *Obligation) AdvanceStatus(now time.Time) es.Idempotent[ObligationStatus] {
	if o.Status.isTerminal() || o.LiquidationStarted {
		return es.Ignored[ObligationStatus]()
	}

	next := o.Status

	switch {
	case !now.Before(o.DefaultedAt):
		next = ObligationDefaulted
	case !now.Before(o.OverdueAt):
		next = ObligationOverdue
	case !now.Before(o.DueAt):
		next = ObligationDue
	}

	if next == o.Status {
		return es.Ignored[ObligationStatus]()
	}

	previous := o.Status

	o.events.Append(ObligationEvent{
		Type: ObligationStatusUpdated, Status: next,
		AuditInfo: authz.NewAuditInfo(authz.SystemSubject, now),
	})
	o.Status = next

	return es.Executed(previous)
}

// StartLiquidation marks the obligation as undergoing liquidation. It may
// be called before the obligation reaches Defaulted: liquidation can
// start as soon as the facility's collateral crosses Terms.LiquidationCVL,
// and once started takes precedence over the automatic default sweep.
// Idempotent: starting liquidation twice is a no-op.
func (o *Obligation) StartLiquidation() (es.Idempotent[struct{}], error) {
	if o.Status.isTerminal() {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Obligation",
			"obligation %s is already terminal (%s), cannot start liquidation", o.ID, o.Status)
	}

	if o.LiquidationStarted {
		return es.Ignored[struct{}](), nil
	}

	o.events.Append(ObligationEvent{
		Type: ObligationLiquidationStarted, AuditInfo: authz.NewAuditInfo(authz.SystemSubject, clock()),
	})
	o.LiquidationStarted = true

	return es.Executed(struct{}{}), nil
}

// ApplyInstallment absorbs up to remaining against the obligation's
// outstanding balance, in the order the installment allocation algorithm
// processes obligations (oldest first). It returns how much of remaining
// was consumed by this obligation, so the caller can carry the rest to
// the next obligation in creation order. An obligation that is already
// Paid absorbs nothing.
func (o *Obligation) ApplyInstallment(installmentID string, remaining money.UsdCents, audit authz.AuditInfo) money.UsdCents {
	if o.Status == ObligationPaid || remaining.IsZero() {
		return 0
	}

	consumed := remaining
	if consumed > o.Outstanding {
		consumed = o.Outstanding
	}

	o.events.Append(ObligationEvent{
		Type: ObligationInstallmentRecorded, InstallmentID: installmentID, PaymentApplied: consumed, AuditInfo: audit,
	})

	newOutstanding := o.Outstanding - consumed
	o.Outstanding = newOutstanding

	if newOutstanding <= 0 {
		o.events.Append(ObligationEvent{Type: ObligationStatusUpdated, Status: ObligationPaid, AuditInfo: audit})
		o.Status = ObligationPaid
	}

	return consumed
}

func reduceObligation(events *es.EntityEvents[ObligationEvent]) (Obligation, error) {
	o := Obligation{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case ObligationInitialized:
			o.ID = e.ID
			o.FacilityID = e.FacilityID
			o.ObligationType = e.ObligationType
			o.Amount = e.Amount
			o.Outstanding = e.Amount
			o.DueAt = e.DueAt
			o.OverdueAt = e.OverdueAt
			o.LiquidationAt = e.LiquidationAt
			o.DefaultedAt = e.DefaultedAt
			o.Status = ObligationNotYetDue
			o.CreatedAt = e.AuditInfo.At
		case ObligationStatusUpdated:
			o.Status = e.Status
		case ObligationLiquidationStarted:
			o.LiquidationStarted = true
		case ObligationInstallmentRecorded:
			o.Outstanding -= e.PaymentApplied
		}
	}

	return o, nil
}

func creditObligationEvents(o *Obligation) *es.EntityEvents[ObligationEvent] { return o.events }
