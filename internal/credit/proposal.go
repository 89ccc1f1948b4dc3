package credit

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// CollateralizationState is the closed set of collateral-adequacy states
// a proposal (and, later, its facility) can be in.
type CollateralizationState string

const (
	CollateralizationNotYetCollateralized CollateralizationState = "not_yet_collateralized"
	CollateralizationUnderCollateralized  CollateralizationState = "under_collateralized"
	CollateralizationFullyCollateralized  CollateralizationState = "fully_collateralized"
)

// ProposalEvent is the closed set of events recorded against a
// CreditFacilityProposal.
type ProposalEvent struct {
	Type                  string                  `json:"type"`
	ID                    string                  `json:"id,omitempty"`
	CustomerID            string                  `json:"customer_id,omitempty"`
	Amount                money.UsdCents          `json:"amount,omitempty"`
	Terms                 Terms                   `json:"terms,omitempty"`
	CollateralID          string                  `json:"collateral_id,omitempty"`
	CollateralizationState CollateralizationState `json:"collateralization_state,omitempty"`
	Ratio                 money.CVLPct            `json:"ratio,omitempty"`
	ApprovalProcessID     string                  `json:"approval_process_id,omitempty"`
	Approved              bool                    `json:"approved,omitempty"`
	FacilityID            string                  `json:"facility_id,omitempty"`
	AuditInfo             authz.AuditInfo         `json:"audit_info"`
}

func (e ProposalEvent) Kind() string { return e.Type }

const (
	ProposalInitialized                  = "initialized"
	ProposalCollateralizationStateChanged = "collateralization_state_changed"
	ProposalApprovalProcessStarted       = "approval_process_started"
	ProposalApprovalProcessConcluded    = "approval_process_concluded"
	ProposalCompleted                   = "completed"
)

// CreditFacilityProposal is a prospective facility awaiting
// collateralization and approval. Once both conditions are met it is
// completed into a CreditFacility and never mutated again.
type CreditFacilityProposal struct {
	ID                     string
	CustomerID             string
	Amount                 money.UsdCents
	Terms                  Terms
	CollateralID           string
	CollateralizationState CollateralizationState
	Ratio                  money.CVLPct
	ApprovalProcessID      string
	approvalConcluded      bool
	Approved               bool
	FacilityID             string
	events                 *es.EntityEvents[ProposalEvent]
}

// NewCreditFacilityProposal starts a proposal for customerID requesting
// amount under terms, and seeds the Collateral it will track
// collateralization against.
func NewCreditFacilityProposal(customerID string, amount money.UsdCents, terms Terms, audit authz.AuditInfo) (*CreditFacilityProposal, *Collateral) {
	id := uuid.NewString()
	collateral := NewCollateral(id, audit)

	return &CreditFacilityProposal{
		ID:                     id,
		CustomerID:             customerID,
		Amount:                 amount,
		Terms:                  terms,
		CollateralID:           collateral.ID,
		CollateralizationState: CollateralizationNotYetCollateralized,
		Ratio:                  money.ZeroCVL,
		events: es.NewEntityEvents(id, ProposalEvent{
			Type: ProposalInitialized, ID: id, CustomerID: customerID, Amount: amount,
			Terms: terms, CollateralID: collateral.ID, AuditInfo: audit,
		}),
	}, collateral
}

// IsApprovalConcluded reports whether the approval process has reached a
// final verdict (approved or denied), regardless of which.
func (p *CreditFacilityProposal) IsApprovalConcluded() bool { return p.approvalConcluded }

// IsCompleted reports whether the proposal has already produced a
// facility.
func (p *CreditFacilityProposal) IsCompleted() bool { return p.FacilityID != "" }

// UpdateCollateralization recomputes the collateralization state from
// collateralValue (the facility's collateral, priced in USD cents) against
// the proposal's requested amount, per the same facility_amount_cvl
// threshold rule an active facility uses: a ratio at or above
// Terms.MarginCallCVL is FullyCollateralized, a nonzero ratio below it is
// UnderCollateralized, and zero collateral is NotYetCollateralized. Both
// the state and the underlying ratio changes are idempotent: recomputing
// against an unchanged collateral value is a no-op.
func (p *CreditFacilityProposal) UpdateCollateralization(collateralValue money.UsdCents, audit authz.AuditInfo) es.Idempotent[CollateralizationState] {
	ratio := money.CVLFromLoanAmounts(collateralValue, p.Amount)
	state := collateralizationStateFor(ratio, p.Terms)

	if state == p.CollateralizationState && ratio.Cmp(p.Ratio) == 0 {
		return es.Ignored[CollateralizationState]()
	}

	previous := p.CollateralizationState

	p.events.Append(ProposalEvent{
		Type: ProposalCollateralizationStateChanged, CollateralizationState: state, Ratio: ratio, AuditInfo: audit,
	})
	p.CollateralizationState = state
	p.Ratio = ratio

	return es.Executed(previous)
}

func collateralizationStateFor(ratio money.CVLPct, terms Terms) CollateralizationState {
	switch {
	case ratio.IsZero():
		return CollateralizationNotYetCollateralized
	case ratio.Cmp(terms.MarginCallCVL) >= 0:
		return CollateralizationFullyCollateralized
	default:
		return CollateralizationUnderCollateralized
	}
}

// StartApprovalProcess records the governance approval process tracking
// this proposal's human sign-off. Idempotent: starting it twice with the
// same process ID is a no-op.
func (p *CreditFacilityProposal) StartApprovalProcess(approvalProcessID string, audit authz.AuditInfo) es.Idempotent[struct{}] {
	if p.ApprovalProcessID == approvalProcessID {
		return es.Ignored[struct{}]()
	}

	p.events.Append(ProposalEvent{Type: ProposalApprovalProcessStarted, ApprovalProcessID: approvalProcessID, AuditInfo: audit})
	p.ApprovalProcessID = approvalProcessID

	return es.Executed(struct{}{})
}

// ConcludeApprovalProcess records the governance verdict. Idempotent:
// once concluded, a repeat call with the same verdict is a no-op; a call
// with a different verdict is an invariant violation, since an approval
// process concludes exactly once.
func (p *CreditFacilityProposal) ConcludeApprovalProcess(approved bool) (es.Idempotent[struct{}], error) {
	if p.approvalConcluded {
		if p.Approved == approved {
			return es.Ignored[struct{}](), nil
		}

		return es.Ignored[struct{}](), apperr.InvariantViolation("CreditFacilityProposal",
			"proposal %s approval process already concluded as approved=%t", p.ID, p.Approved)
	}

	p.events.Append(ProposalEvent{
		Type: ProposalApprovalProcessConcluded, Approved: approved,
		AuditInfo: authz.NewAuditInfo(authz.SystemSubject, clock()),
	})
	p.approvalConcluded = true
	p.Approved = approved

	return es.Executed(struct{}{}), nil
}

// ReadyForFacility reports whether the proposal has both a concluded,
// approved approval process and a FullyCollateralized state.
func (p *CreditFacilityProposal) ReadyForFacility() bool {
	return p.approvalConcluded && p.Approved && p.CollateralizationState == CollateralizationFullyCollateralized
}

// Complete links the proposal to the facility created from it. Idempotent
// on repeated completion with the same facility ID.
func (p *CreditFacilityProposal) Complete(facilityID string) (es.Idempotent[struct{}], error) {
	if p.FacilityID == facilityID && facilityID != "" {
		return es.Ignored[struct{}](), nil
	}

	if p.FacilityID != "" {
		return es.Ignored[struct{}](), apperr.InvariantViolation("CreditFacilityProposal",
			"proposal %s already completed into facility %s", p.ID, p.FacilityID)
	}

	if !p.ReadyForFacility() {
		return es.Ignored[struct{}](), apperr.InvariantViolation("CreditFacilityProposal",
			"proposal %s is not ready to become a facility", p.ID)
	}

	p.events.Append(ProposalEvent{
		Type: ProposalCompleted, FacilityID: facilityID,
		AuditInfo: authz.NewAuditInfo(authz.SystemSubject, clock()),
	})
	p.FacilityID = facilityID

	return es.Executed(struct{}{}), nil
}

func reduceProposal(events *es.EntityEvents[ProposalEvent]) (CreditFacilityProposal, error) {
	p := CreditFacilityProposal{events: events, CollateralizationState: CollateralizationNotYetCollateralized, Ratio: money.ZeroCVL}

	for _, e := range events.All() {
		switch e.Type {
		case ProposalInitialized:
			p.ID = e.ID
			p.CustomerID = e.CustomerID
			p.Amount = e.Amount
			p.Terms = e.Terms
			p.CollateralID = e.CollateralID
		case ProposalCollateralizationStateChanged:
			p.CollateralizationState = e.CollateralizationState
			p.Ratio = e.Ratio
		case ProposalApprovalProcessStarted:
			p.ApprovalProcessID = e.ApprovalProcessID
		case ProposalApprovalProcessConcluded:
			p.approvalConcluded = true
			p.Approved = e.Approved
		case ProposalCompleted:
			p.FacilityID = e.FacilityID
		}
	}

	return p, nil
}

func creditProposalEvents(p *CreditFacilityProposal) *es.EntityEvents[ProposalEvent] { return p.events }
