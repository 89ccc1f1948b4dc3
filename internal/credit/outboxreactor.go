package credit

import (
	"context"
	"encoding/json"

	"github.com/northstarcredit/core/pkg/applog"
	"github.com/northstarcredit/core/pkg/apptrace"
	"github.com/northstarcredit/core/pkg/money"
	"github.com/northstarcredit/core/pkg/outbox"
)

// Event types this package reacts to from other domains' outbox streams.
// These are the producer's wire event types, not this package's own — the
// reactor only needs to agree on the JSON shape, never the producer's Go
// types, which keeps internal/credit free of an import on internal/custody
// or internal/governance.
const (
	custodyWalletBalanceChanged        = "wallet_balance_changed"
	governanceApprovalProcessConcluded = "approval_process_concluded"
)

// walletBalanceChangedPayload is the subset of internal/custody's wallet
// balance event this reactor cares about.
type walletBalanceChangedPayload struct {
	FacilityID string         `json:"facility_id"`
	Balance    money.Satoshis `json:"balance"`
}

// approvalProcessConcludedPayload is the subset of internal/governance's
// approval process event this reactor cares about. Kind distinguishes
// whether the process gated a proposal or a disbursal, since the two need
// different follow-up calls into Service.
type approvalProcessConcludedPayload struct {
	Kind     string `json:"kind"`
	EntityID string `json:"entity_id"`
	Approved bool   `json:"approved"`
}

// Reactor consumes the shared outbox stream and drives the system-side
// transitions that originate from other domains: a custody wallet balance
// update syncs a facility's Collateral, and a concluded governance approval
// process advances a proposal's or a disbursal's approval state.
type Reactor struct {
	service *Service
}

// NewReactor builds a Reactor bound to service.
func NewReactor(service *Service) *Reactor {
	return &Reactor{service: service}
}

// Run drains envelopes from listener until ctx is canceled or the listener
// closes its channel, applying each one and logging (never panicking) on a
// handler failure, so one malformed or transiently failing envelope never
// stalls the rest of the stream. The caller is responsible for persisting
// and supplying the resume cursor across restarts; Run itself is stateless
// beyond the channel it is handed.
func (r *Reactor) Run(ctx context.Context, envelopes <-chan outbox.Envelope) {
	log := applog.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-envelopes:
			if !ok {
				return
			}

			if err := r.handle(ctx, env); err != nil {
				log.Errorf("credit: outbox reactor failed on sequence %d (%s): %v", env.Sequence, env.EventType, err)
			}
		}
	}
}

func (r *Reactor) handle(ctx context.Context, env outbox.Envelope) error {
	ctx, span := apptrace.Start(ctx, "credit", "outbox_reactor_handle")
	defer span.End()

	switch env.EventType {
	case custodyWalletBalanceChanged:
		return r.handleWalletBalanceChanged(ctx, env.Payload)
	case governanceApprovalProcessConcluded:
		return r.handleApprovalProcessConcluded(ctx, env.Payload)
	default:
		return nil
	}
}

func (r *Reactor) handleWalletBalanceChanged(ctx context.Context, raw []byte) error {
	var payload walletBalanceChangedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	return r.service.SyncCollateralFromCustodian(ctx, payload.FacilityID, payload.Balance)
}

func (r *Reactor) handleApprovalProcessConcluded(ctx context.Context, raw []byte) error {
	var payload approvalProcessConcludedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	switch payload.Kind {
	case "credit_facility_proposal":
		return r.service.ConcludeProposalApproval(ctx, payload.EntityID, payload.Approved)
	case "disbursal":
		return r.service.ApproveDisbursalFromGovernance(ctx, payload.EntityID, payload.Approved)
	default:
		return nil
	}
}
