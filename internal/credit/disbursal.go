package credit

import (
	"github.com/google/uuid"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/es"
	"github.com/northstarcredit/core/pkg/money"
)

// DisbursalStatus is the closed lifecycle of a Disbursal.
type DisbursalStatus string

const (
	DisbursalNew       DisbursalStatus = "new"
	DisbursalApproved  DisbursalStatus = "approved"
	DisbursalDenied    DisbursalStatus = "denied"
	DisbursalSettled   DisbursalStatus = "settled"
)

// DisbursalEvent is the closed set of events recorded against a
// Disbursal.
type DisbursalEvent struct {
	Type              string          `json:"type"`
	ID                string          `json:"id,omitempty"`
	FacilityID        string          `json:"facility_id,omitempty"`
	Amount            money.UsdCents  `json:"amount,omitempty"`
	ApprovalProcessID string          `json:"approval_process_id,omitempty"`
	Approved          bool            `json:"approved,omitempty"`
	LedgerTxID        string          `json:"ledger_tx_id,omitempty"`
	ObligationID      string          `json:"obligation_id,omitempty"`
	AuditInfo         authz.AuditInfo `json:"audit_info"`
}

func (e DisbursalEvent) Kind() string { return e.Type }

const (
	DisbursalInitialized           = "initialized"
	DisbursalApprovalProcessConcluded = "approval_process_concluded"
	DisbursalSettledEvent          = "settled"
)

// Disbursal is a single draw-down against an activated CreditFacility. It
// may only be created once the facility is Activated, requires an
// approved governance decision before it can settle, and produces the
// Obligation for its principal once settled.
type Disbursal struct {
	ID                string
	FacilityID        string
	Amount            money.UsdCents
	Status            DisbursalStatus
	approvalConcluded bool
	LedgerTxID        string
	ObligationID      string
	events            *es.EntityEvents[DisbursalEvent]
}

// NewDisbursal starts a Disbursal against an activated facility.
// facilityActivated must be true; callers are expected to have checked
// CreditFacility.IsActivated before calling this constructor.
func NewDisbursal(facilityID string, amount money.UsdCents, facilityActivated bool, audit authz.AuditInfo) (*Disbursal, error) {
	if !facilityActivated {
		return nil, apperr.InvariantViolation("Disbursal", "facility %s is not activated, cannot disburse", facilityID)
	}

	id := uuid.NewString()

	return &Disbursal{
		ID: id, FacilityID: facilityID, Amount: amount, Status: DisbursalNew,
		events: es.NewEntityEvents(id, DisbursalEvent{
			Type: DisbursalInitialized, ID: id, FacilityID: facilityID, Amount: amount, AuditInfo: audit,
		}),
	}, nil
}

// ConcludeApprovalProcess records governance's verdict on the disbursal.
// Idempotent on a repeat of the same verdict.
func (d *Disbursal) ConcludeApprovalProcess(approved bool) (es.Idempotent[struct{}], error) {
	if d.approvalConcluded {
		if (d.Status == DisbursalApproved) == approved {
			return es.Ignored[struct{}](), nil
		}

		return es.Ignored[struct{}](), apperr.InvariantViolation("Disbursal",
			"disbursal %s approval process already concluded", d.ID)
	}

	d.events.Append(DisbursalEvent{
		Type: DisbursalApprovalProcessConcluded, Approved: approved,
		AuditInfo: authz.NewAuditInfo(authz.SystemSubject, clock()),
	})

	d.approvalConcluded = true
	if approved {
		d.Status = DisbursalApproved
	} else {
		d.Status = DisbursalDenied
	}

	return es.Executed(struct{}{}), nil
}

// Settle posts the disbursal's principal to the ledger and records the
// Obligation created for it. It requires the disbursal to have been
// approved first. Idempotent: settling an already-settled disbursal with
// the same ledger transaction ID is a no-op, so a redelivered outbox
// reactor event never double-posts.
func (d *Disbursal) Settle(ledgerTxID, obligationID string, audit authz.AuditInfo) (es.Idempotent[struct{}], error) {
	if d.Status == DisbursalSettled {
		if d.LedgerTxID == ledgerTxID {
			return es.Ignored[struct{}](), nil
		}

		return es.Ignored[struct{}](), apperr.InvariantViolation("Disbursal", "disbursal %s already settled", d.ID)
	}

	if d.Status != DisbursalApproved {
		return es.Ignored[struct{}](), apperr.InvariantViolation("Disbursal",
			"disbursal %s requires approval before it can settle (status=%s)", d.ID, d.Status)
	}

	d.events.Append(DisbursalEvent{
		Type: DisbursalSettledEvent, LedgerTxID: ledgerTxID, ObligationID: obligationID, AuditInfo: audit,
	})
	d.Status = DisbursalSettled
	d.LedgerTxID = ledgerTxID
	d.ObligationID = obligationID

	return es.Executed(struct{}{}), nil
}

func reduceDisbursal(events *es.EntityEvents[DisbursalEvent]) (Disbursal, error) {
	d := Disbursal{events: events}

	for _, e := range events.All() {
		switch e.Type {
		case DisbursalInitialized:
			d.ID = e.ID
			d.FacilityID = e.FacilityID
			d.Amount = e.Amount
			d.Status = DisbursalNew
		case DisbursalApprovalProcessConcluded:
			d.approvalConcluded = true
			if e.Approved {
				d.Status = DisbursalApproved
			} else {
				d.Status = DisbursalDenied
			}
		case DisbursalSettledEvent:
			d.Status = DisbursalSettled
			d.LedgerTxID = e.LedgerTxID
			d.ObligationID = e.ObligationID
		}
	}

	return d, nil
}

func creditDisbursalEvents(d *Disbursal) *es.EntityEvents[DisbursalEvent] { return d.events }
