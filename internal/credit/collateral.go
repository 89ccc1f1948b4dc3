package credit

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// CollateralEvent is the closed set of events recorded against a
// Collateral.
type CollateralEvent struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	FacilityID string          `json:"facility_id,omitempty"`
	Total      money.Satoshis  `json:"total,omitempty"`
	AuditInfo  authz.AuditInfo `json:"audit_info"`
}

func (e CollateralEvent) Kind() string { return e.Type }

const (
	CollateralInitialized             = "initialized"
	CollateralManualUpdated           = "manual_updated"
	CollateralCustodianBalanceUpdated = "custodian_balance_updated"
)

// collateralSource tracks which of the two mutually exclusive update
// paths a Collateral is driven by, once either one has been used.
type collateralSource int

const (
	collateralSourceUnset collateralSource = iota
	collateralSourceManual
	collateralSourceCustodian
)

// Collateral is the BTC balance backing one CreditFacility. It is
// updated either by manual operator entry or by custody's wallet-balance
// sync, never both: whichever path records the first update locks in
// that source for the facility's life, mirroring the fact that a
// facility is configured with collateral either self-custodied or
// tracked through internal/custody, not both at once.
type Collateral struct {
	ID         string
	FacilityID string
	Total      money.Satoshis
	source     collateralSource
	events     *es.EntityEvents[CollateralEvent]
}

// NewCollateral starts a zero-balance Collateral for facilityID.
func NewCollateral(facilityID string, audit authz.AuditInfo) *Collateral {
	id := uuid.NewString()

	return &Collateral{
		ID:         id,
		FacilityID: facilityID,
		events: es.NewEntityEvents(id, CollateralEvent{
			Type: CollateralInitialized, ID: id, FacilityID: facilityID, AuditInfo: audit,
		}),
	}
}

// UpdateManual sets the collateral total by direct operator entry.
// Idempotent: setting the same total twice is a no-op.
func (c *Collateral) UpdateManual(total money.Satoshis, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if c.source == collateralSourceCustodian {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Collateral",
			"facility %s collateral is custodian-synced, cannot set manually", c.FacilityID)
	}

	if total < 0 {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Collateral", "collateral total cannot be negative")
	}

	if c.source == collateralSourceManual && total == c.Total {
		return es.Ignored[struct{}](), nil
	}

	c.events.Append(CollateralEvent{Type: CollateralManualUpdated, Total: total, AuditInfo: audit})
	c.Total = total
	c.source = collateralSourceManual

	return es.Executed(struct{}{}), nil
}

// UpdateFromCustodian records the custody domain's latest reported wallet
// balance. Idempotent on repeated identical balances, since the custody
// outbox reactor may redeliver the same balance-changed event.
func (c *Collateral) UpdateFromCustodian(total money.Satoshis) (es.Idempotent[struct{}], error) {
	if c.source == collateralSourceManual {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Collateral",
			"facility %s collateral is manually managed, cannot sync from custodian", c.FacilityID)
	}

	if total < 0 {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Collateral", "collateral total cannot be negative")
	}

	if c.source == collateralSourceCustodian && total == c.Total {
		return es.Ignored[struct{}](), nil
	}

	c.events.Append(CollateralEvent{
		Type: CollateralCustodianBalanceUpdated, Total: total,
		AuditInfo: authz.NewAuditInfo(authz.SystemSubject, clock()),
	})
	c.Total = total
	c.source = collateralSourceCustodian

	return es.Executed(struct{}{}), nil
}

func reduceCollateral(events *es.EntityEvents[CollateralEvent]) (Collateral, error) {
	c := Collateral{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case CollateralInitialized:
			c.ID = e.ID
			c.FacilityID = e.FacilityID
		case CollateralManualUpdated:
			c.Total = e.Total
			c.source = collateralSourceManual
		case CollateralCustodianBalanceUpdated:
			c.Total = e.Total
			c.source = collateralSourceCustodian
		}
	}

	return c, nil
}

func creditCollateralEvents(c *Collateral) *es.EntityEvents[CollateralEvent] { return c.events }
