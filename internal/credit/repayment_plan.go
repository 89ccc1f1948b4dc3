package credit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/northstarcredit/core/pkg/money"
)

// RepaymentPlanEntry is one projected line in a facility's repayment
// schedule: either the disbursed principal itself or one interest
// accrual cycle's expected charge.
type RepaymentPlanEntry struct {
	Type   ObligationType
	DueAt  time.Time
	Amount money.UsdCents
	// Projected is true for entries synthesized from Terms because no
	// real Obligation exists for them yet (the facility has not
	// disbursed, or the cycle has not closed). Every entry
	// ProjectRepaymentPlan returns is projected; nothing here merges
	// projected entries with real Obligations.
	Projected bool
}

// ProjectRepaymentPlan synthesizes the repayment schedule a facility
// would follow if it drew down its full amount immediately, used when a
// facility has not yet disbursed (or has disbursed less than its full
// amount) and no real Obligations exist to report instead. It is a pure
// function of Terms and amount: it never reads from storage and never
// reflects actual payments.
func ProjectRepaymentPlan(amount money.UsdCents, terms Terms, activatedAt time.Time) []RepaymentPlanEntry {
	if amount.IsZero() || terms.Duration <= 0 {
		return nil
	}

	plan := []RepaymentPlanEntry{
		{Type: ObligationTypeDisbursal, DueAt: activatedAt, Amount: amount, Projected: true},
	}

	cycle := terms.InterestAccrualCycleInterval
	if cycle <= 0 {
		return plan
	}

	dailyRate := terms.AnnualRate.Div(decimal.NewFromInt(365))
	cycleDays := decimal.NewFromInt(int64(cycle / (24 * time.Hour)))
	if cycleDays.IsZero() {
		cycleDays = decimal.NewFromInt(1)
	}

	cycleInterest := money.UsdCentsFromUSD(amount.ToUSD().Mul(dailyRate).Mul(cycleDays))

	for due := activatedAt.Add(cycle); due.Before(activatedAt.Add(terms.Duration)) || due.Equal(activatedAt.Add(terms.Duration)); due = due.Add(cycle) {
		plan = append(plan, RepaymentPlanEntry{Type: ObligationTypeInterest, DueAt: due, Amount: cycleInterest, Projected: true})
	}

	return plan
}
