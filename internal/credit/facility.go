package credit

import (
	"time"

	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// FacilityStatus is the closed lifecycle a CreditFacility moves through.
type FacilityStatus string

const (
	FacilityInitializedStatus FacilityStatus = "initialized"
	FacilityApprovedStatus    FacilityStatus = "approved"
	FacilityActivatedStatus   FacilityStatus = "activated"
	FacilityMaturedStatus     FacilityStatus = "matured"
	FacilityCompletedStatus   FacilityStatus = "completed"
)

// facilityTransitions is the closed adjacency list of valid status
// transitions; anything not listed here is an invariant violation.
var facilityTransitions = map[FacilityStatus]FacilityStatus{
	FacilityInitializedStatus: FacilityApprovedStatus,
	FacilityApprovedStatus:    FacilityActivatedStatus,
	FacilityActivatedStatus:   FacilityMaturedStatus,
	FacilityMaturedStatus:     FacilityCompletedStatus,
}

// FacilityEvent is the closed set of events recorded against a
// CreditFacility.
type FacilityEvent struct {
	Type         string          `json:"type"`
	ID           string          `json:"id,omitempty"`
	ProposalID   string          `json:"proposal_id,omitempty"`
	CustomerID   string          `json:"customer_id,omitempty"`
	Amount       money.UsdCents  `json:"amount,omitempty"`
	Terms        Terms           `json:"terms,omitempty"`
	AccountIDs   AccountIDs      `json:"account_ids,omitempty"`
	CollateralID string          `json:"collateral_id,omitempty"`
	Status       FacilityStatus  `json:"status,omitempty"`
	MaturesAt    time.Time       `json:"matures_at,omitempty"`
	AuditInfo    authz.AuditInfo `json:"audit_info"`
}

func (e FacilityEvent) Kind() string { return e.Type }

const (
	FacilityInitialized = "initialized"
	FacilityStatusUpdated = "status_updated"
)

// CreditFacility is an approved, collateralized credit line a customer
// may draw down via Disbursal and must repay through Obligations.
type CreditFacility struct {
	ID           string
	ProposalID   string
	CustomerID   string
	Amount       money.UsdCents
	Terms        Terms
	AccountIDs   AccountIDs
	CollateralID string
	Status       FacilityStatus
	ActivatedAt  time.Time
	MaturesAt    time.Time
	events       *es.EntityEvents[FacilityEvent]
}

// NewCreditFacility creates a facility from a completed proposal, reusing
// its Collateral so collateralization tracked before approval carries
// forward unchanged.
func NewCreditFacility(proposal CreditFacilityProposal, accounts AccountIDs, audit authz.AuditInfo) *CreditFacility {
	id := uuid.NewString()

	return &CreditFacility{
		ID: id, ProposalID: proposal.ID, CustomerID: proposal.CustomerID,
		Amount: proposal.Amount, Terms: proposal.Terms, AccountIDs: accounts,
		CollateralID: proposal.CollateralID, Status: FacilityInitializedStatus,
		events: es.NewEntityEvents(id, FacilityEvent{
			Type: FacilityInitialized, ID: id, ProposalID: proposal.ID, CustomerID: proposal.CustomerID,
			Amount: proposal.Amount, Terms: proposal.Terms, AccountIDs: accounts,
			CollateralID: proposal.CollateralID, AuditInfo: audit,
		}),
	}
}

// transition validates and records a status change, idempotent on
// repeating the current status.
func (f *CreditFacility) transition(target FacilityStatus, maturesAt time.Time, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if f.Status == target {
		return es.Ignored[struct{}](), nil
	}

	if facilityTransitions[f.Status] != target {
		return es.Ignored[struct{}](), apperr.InvariantViolation("CreditFacility",
			"facility %s cannot move from %s to %s", f.ID, f.Status, target)
	}

	f.events.Append(FacilityEvent{Type: FacilityStatusUpdated, Status: target, MaturesAt: maturesAt, AuditInfo: audit})

	f.Status = target
	if target == FacilityActivatedStatus {
		f.ActivatedAt = audit.At
		f.MaturesAt = maturesAt
	}

	return es.Executed(struct{}{}), nil
}

// Approve moves the facility from Initialized to Approved.
func (f *CreditFacility) Approve(audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	return f.transition(FacilityApprovedStatus, time.Time{}, audit)
}

// Activate moves an Approved facility to Activated, fixing its maturity
// date Terms.Duration out from activation. Activation happens on the
// facility's first successfully settled Disbursal.
func (f *CreditFacility) Activate(audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	return f.transition(FacilityActivatedStatus, clock().Add(f.Terms.Duration), audit)
}

// Mature moves an Activated facility to Matured once its maturity date
// has passed. Maturing does not by itself close out remaining
// obligations; it only stops new disbursals and interest accrual.
func (f *CreditFacility) Mature(audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	return f.transition(FacilityMaturedStatus, time.Time{}, audit)
}

// Complete moves a Matured facility to Completed once every obligation
// against it has been paid. Callers must verify that precondition before
// calling Complete; the entity does not have visibility into obligations.
func (f *CreditFacility) Complete(audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	return f.transition(FacilityCompletedStatus, time.Time{}, audit)
}

// IsActivated reports whether disbursals may be created against this
// facility.
func (f *CreditFacility) IsActivated() bool { return f.Status == FacilityActivatedStatus }

func reduceFacility(events *es.EntityEvents[FacilityEvent]) (CreditFacility, error) {
	f := CreditFacility{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case FacilityInitialized:
			f.ID = e.ID
			f.ProposalID = e.ProposalID
			f.CustomerID = e.CustomerID
			f.Amount = e.Amount
			f.Terms = e.Terms
			f.AccountIDs = e.AccountIDs
			f.CollateralID = e.CollateralID
			f.Status = FacilityInitializedStatus
		case FacilityStatusUpdated:
			f.Status = e.Status
			if e.Status == FacilityActivatedStatus {
				f.ActivatedAt = e.AuditInfo.At
				f.MaturesAt = e.MaturesAt
			}
		}
	}

	return f, nil
}

func creditFacilityEvents(f *CreditFacility) *es.EntityEvents[FacilityEvent] { return f.events }
