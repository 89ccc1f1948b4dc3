package credit

import (
	"time"

	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// AccrualCycleStatus is the closed lifecycle of an InterestAccrualCycle.
type AccrualCycleStatus string

const (
	AccrualCycleOpen   AccrualCycleStatus = "open"
	AccrualCycleClosed AccrualCycleStatus = "closed"
)

// InterestAccrualCycleEvent is the closed set of events recorded against
// an InterestAccrualCycle.
type InterestAccrualCycleEvent struct {
	Type          string             `json:"type"`
	ID            string             `json:"id,omitempty"`
	FacilityID    string             `json:"facility_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Amount        money.UsdCents     `json:"amount,omitempty"`
	ObligationID  string             `json:"obligation_id,omitempty"`
	AuditInfo     authz.AuditInfo    `json:"audit_info"`
}

func (e InterestAccrualCycleEvent) Kind() string { return e.Type }

const (
	AccrualCycleInitialized = "initialized"
	AccrualRecorded         = "accrual_recorded"
	AccrualCycleClosedEvent = "cycle_closed"
)

// InterestAccrualCycle accumulates a facility's interest accrual for one
// cycle (normally a calendar month), one sub-period's accrual at a time,
// and posts at most one Obligation for the whole cycle when it closes.
type InterestAccrualCycle struct {
	ID              string
	FacilityID      string
	Status          AccrualCycleStatus
	TotalAccrued    money.UsdCents
	recordedDays    map[string]bool
	PostedObligationID string
	events          *es.EntityEvents[InterestAccrualCycleEvent]
}

// NewInterestAccrualCycle opens a new accrual cycle for facilityID.
func NewInterestAccrualCycle(facilityID string, audit authz.AuditInfo) *InterestAccrualCycle {
	id := uuid.NewString()

	return &InterestAccrualCycle{
		ID: id, FacilityID: facilityID, Status: AccrualCycleOpen,
		events: es.NewEntityEvents(id, InterestAccrualCycleEvent{
			Type: AccrualCycleInitialized, ID: id, FacilityID: facilityID, AuditInfo: audit,
		}),
	}
}

// RecordAccrual adds amount to the cycle's running total for one
// sub-period, keyed by idempotencyKey (typically the calendar day the
// accrual job ran for). Idempotent: recording the same key twice is a
// no-op, so a rescheduled accrual job never double-counts a day.
func (c *InterestAccrualCycle) RecordAccrual(idempotencyKey string, amount money.UsdCents, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if c.Status != AccrualCycleOpen {
		return es.Ignored[struct{}](), apperr.InvariantViolation("InterestAccrualCycle",
			"cycle %s is already closed", c.ID)
	}

	if c.recordedDays[idempotencyKey] {
		return es.Ignored[struct{}](), nil
	}

	c.events.Append(InterestAccrualCycleEvent{
		Type: AccrualRecorded, IdempotencyKey: idempotencyKey, Amount: amount, AuditInfo: audit,
	})

	if c.recordedDays == nil {
		c.recordedDays = map[string]bool{}
	}

	c.recordedDays[idempotencyKey] = true
	c.TotalAccrued += amount

	return es.Executed(struct{}{}), nil
}

// Close ends the cycle and records the obligation ID posted for its
// total accrued interest (empty if the total was zero, since a
// zero-amount obligation is never created). Idempotent: closing an
// already-closed cycle is a no-op as long as the same obligationID is
// supplied.
func (c *InterestAccrualCycle) Close(obligationID string, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if c.Status == AccrualCycleClosed {
		if c.PostedObligationID == obligationID {
			return es.Ignored[struct{}](), nil
		}

		return es.Ignored[struct{}](), apperr.InvariantViolation("InterestAccrualCycle",
			"cycle %s already closed with obligation %s", c.ID, c.PostedObligationID)
	}

	c.events.Append(InterestAccrualCycleEvent{
		Type: AccrualCycleClosedEvent, ObligationID: obligationID, AuditInfo: audit,
	})
	c.Status = AccrualCycleClosed
	c.PostedObligationID = obligationID

	return es.Executed(struct{}{}), nil
}

func reduceInterestAccrualCycle(events *es.EntityEvents[InterestAccrualCycleEvent]) (InterestAccrualCycle, error) {
	c := InterestAccrualCycle{events: events, recordedDays: map[string]bool{}}

	for _, e := range events.All() {
		switch e.Type {
		case AccrualCycleInitialized:
			c.ID = e.ID
			c.FacilityID = e.FacilityID
			c.Status = AccrualCycleOpen
		case AccrualRecorded:
			c.TotalAccrued += e.Amount
			c.recordedDays[e.IdempotencyKey] = true
		case AccrualCycleClosedEvent:
			c.Status = AccrualCycleClosed
			c.PostedObligationID = e.ObligationID
		}
	}

	return c, nil
}

func creditAccrualCycleEvents(c *InterestAccrualCycle) *es.EntityEvents[InterestAccrualCycleEvent] {
	return c.events
}

// dailyKey is the idempotency key a daily accrual job records under.
func dailyKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
