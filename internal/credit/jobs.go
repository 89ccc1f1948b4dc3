package credit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/jobs"
	"github.com/northstarcredit/core/pkg/money"
)

var daysPerYear = decimal.NewFromInt(365)

// Job type names registered against pkg/jobs.Registry.
const (
	JobTypeCollateralizationSweep = "credit.collateralization_sweep"
	JobTypeObligationStatusSweep  = "credit.obligation_status_sweep"
	JobTypeInterestAccrual        = "credit.interest_accrual"
	JobTypeAccrualCycleClose      = "credit.accrual_cycle_close"
	JobTypeFacilityMaturitySweep  = "credit.facility_maturity_sweep"
	JobTypeLiquidationCheck       = "credit.liquidation_check"
)

// CollateralizationSweepRunner recomputes every incomplete proposal's
// collateralization state against the latest BTC/USD price. It is
// scheduled to recur on a short fixed interval rather than per-proposal,
// since the price it reads is itself cached (see PriceCache).
type CollateralizationSweepRunner struct {
	service *Service
	prices  *PriceCache
}

func NewCollateralizationSweepRunner(service *Service, prices *PriceCache) *CollateralizationSweepRunner {
	return &CollateralizationSweepRunner{service: service, prices: prices}
}

func (r *CollateralizationSweepRunner) Run(ctx context.Context, job jobs.Job) (jobs.Completion, error) {
	price, err := r.prices.BTCUSDPrice(ctx)
	if err != nil {
		if apperr.Retryable(err) {
			return jobs.Completion{}, err
		}

		return jobs.Complete(), nil
	}

	priceUSDCents := money.UsdCentsFromUSD(price)

	ids, err := r.service.proposals.ListIncomplete(ctx)
	if err != nil {
		return jobs.Completion{}, err
	}

	for _, id := range ids {
		if err := r.service.UpdateProposalCollateralization(ctx, id, priceUSDCents); err != nil {
			return jobs.Completion{}, err
		}
	}

	return jobs.RescheduleIn(30 * time.Second), nil
}

// ObligationStatusSweepRunner advances every non-terminal obligation's
// status machine (NotYetDue -> Due -> Overdue -> Defaulted) and
// reschedules itself an hour later. It does not start liquidation itself
// (LiquidationCheckRunner does); liquidation started elsewhere takes
// precedence: AdvanceStatus is itself a no-op on an obligation already
// under liquidation.
type ObligationStatusSweepRunner struct {
	service *Service
}

func NewObligationStatusSweepRunner(service *Service) *ObligationStatusSweepRunner {
	return &ObligationStatusSweepRunner{service: service}
}

func (r *ObligationStatusSweepRunner) Run(ctx context.Context, job jobs.Job) (jobs.Completion, error) {
	ids, err := r.service.obligations.ListNonTerminal(ctx)
	if err != nil {
		return jobs.Completion{}, err
	}

	now := time.Now()

	for _, id := range ids {
		obligation, err := r.service.obligations.Find(ctx, id)
		if err != nil {
			return jobs.Completion{}, err
		}

		if !obligation.AdvanceStatus(now).IsExecuted() {
			continue
		}

		if err := r.service.obligations.Update(ctx, &obligation); err != nil {
			return jobs.Completion{}, err
		}
	}

	return jobs.RescheduleIn(time.Hour), nil
}

// interestAccrualPayload is the data carried by one scheduled daily
// accrual job.
type interestAccrualPayload struct {
	CycleID    string `json:"cycle_id"`
	FacilityID string `json:"facility_id"`
}

// InterestAccrualRunner records one day's interest accrual for one
// facility's open cycle. One job is scheduled per active facility per
// day, rather than sweeping every facility in a single job, so a slow or
// failing facility's accrual never blocks another's.
type InterestAccrualRunner struct {
	service *Service
}

func NewInterestAccrualRunner(service *Service) *InterestAccrualRunner {
	return &InterestAccrualRunner{service: service}
}

func (r *InterestAccrualRunner) Run(ctx context.Context, job jobs.Job) (jobs.Completion, error) {
	var payload interestAccrualPayload
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		return jobs.Completion{}, apperr.InvariantViolation("InterestAccrualCycle", "decode job payload: %v", err)
	}

	facility, err := r.service.facilities.Find(ctx, payload.FacilityID)
	if err != nil {
		return jobs.Completion{}, err
	}

	dailyRate := facility.Terms.AnnualRate.Div(daysPerYear)
	amount := money.UsdCentsFromUSD(facility.Amount.ToUSD().Mul(dailyRate))

	if err := r.service.RecordInterestAccrual(ctx, payload.CycleID, amount, dailyKey(time.Now())); err != nil {
		return jobs.Completion{}, err
	}

	return jobs.Complete(), nil
}

// accrualCycleClosePayload is the data carried by a cycle-close job.
type accrualCycleClosePayload struct {
	CycleID string `json:"cycle_id"`
}

// AccrualCycleCloseRunner closes one facility's interest accrual cycle,
// posting at most one Obligation for the cycle's total.
type AccrualCycleCloseRunner struct {
	service *Service
}

func NewAccrualCycleCloseRunner(service *Service) *AccrualCycleCloseRunner {
	return &AccrualCycleCloseRunner{service: service}
}

func (r *AccrualCycleCloseRunner) Run(ctx context.Context, job jobs.Job) (jobs.Completion, error) {
	var payload accrualCycleClosePayload
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		return jobs.Completion{}, apperr.InvariantViolation("InterestAccrualCycle", "decode job payload: %v", err)
	}

	if err := r.service.CloseAccrualCycle(ctx, payload.CycleID); err != nil {
		return jobs.Completion{}, err
	}

	return jobs.Complete(), nil
}

// FacilityMaturitySweepRunner matures every Activated facility whose
// maturity date has passed.
type FacilityMaturitySweepRunner struct {
	service *Service
}

func NewFacilityMaturitySweepRunner(service *Service) *FacilityMaturitySweepRunner {
	return &FacilityMaturitySweepRunner{service: service}
}

func (r *FacilityMaturitySweepRunner) Run(ctx context.Context, job jobs.Job) (jobs.Completion, error) {
	ids, err := r.service.facilities.ListByStatus(ctx, FacilityActivatedStatus)
	if err != nil {
		return jobs.Completion{}, err
	}

	now := time.Now()

	for _, id := range ids {
		facility, err := r.service.facilities.Find(ctx, id)
		if err != nil {
			return jobs.Completion{}, err
		}

		if facility.MaturesAt.IsZero() || now.Before(facility.MaturesAt) {
			continue
		}

		audit := authz.NewAuditInfo(authz.SystemSubject, now)

		if _, err := facility.Mature(audit); err != nil {
			return jobs.Completion{}, err
		}

		if err := r.service.facilities.Update(ctx, &facility); err != nil {
			return jobs.Completion{}, err
		}
	}

	return jobs.RescheduleIn(time.Hour), nil
}

// LiquidationCheckRunner starts liquidation for any Activated facility
// whose collateral has fallen through Terms.LiquidationCVL.
type LiquidationCheckRunner struct {
	service *Service
	prices  *PriceCache
}

func NewLiquidationCheckRunner(service *Service, prices *PriceCache) *LiquidationCheckRunner {
	return &LiquidationCheckRunner{service: service, prices: prices}
}

func (r *LiquidationCheckRunner) Run(ctx context.Context, job jobs.Job) (jobs.Completion, error) {
	price, err := r.prices.BTCUSDPrice(ctx)
	if err != nil {
		if apperr.Retryable(err) {
			return jobs.Completion{}, err
		}

		return jobs.Complete(), nil
	}

	ids, err := r.service.facilities.ListByStatus(ctx, FacilityActivatedStatus)
	if err != nil {
		return jobs.Completion{}, err
	}

	for _, id := range ids {
		facility, err := r.service.facilities.Find(ctx, id)
		if err != nil {
			return jobs.Completion{}, err
		}

		collateral, err := r.service.collateral.Find(ctx, facility.CollateralID)
		if err != nil {
			return jobs.Completion{}, err
		}

		obligations, err := r.service.obligations.ListByFacility(ctx, facility.ID)
		if err != nil {
			return jobs.Completion{}, err
		}

		outstanding := totalOutstanding(obligations)
		collateralValueUSD := money.UsdCentsFromUSD(collateral.Total.ToBTC().Mul(price))

		ratio := money.CVLFromLoanAmounts(collateralValueUSD, outstanding)
		if ratio.IsInfinite() || ratio.Cmp(facility.Terms.LiquidationCVL) >= 0 {
			continue
		}

		if _, err := r.service.StartLiquidation(ctx, facility.ID); err != nil {
			return jobs.Completion{}, err
		}
	}

	return jobs.RescheduleIn(time.Minute), nil
}

func totalOutstanding(obligations []Obligation) money.UsdCents {
	var total money.UsdCents

	for _, o := range obligations {
		if o.Status == ObligationPaid {
			continue
		}

		total += o.Outstanding
	}

	return total
}
