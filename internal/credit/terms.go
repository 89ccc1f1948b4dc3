package credit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/northstarcredit/core/pkg/money"
)

// Terms are the economic parameters a CreditFacilityProposal is struck
// under. They are copied onto the resulting CreditFacility unchanged and
// never renegotiated for its lifetime; a new facility is the only way to
// change terms.
type Terms struct {
	// AnnualRate is the facility's interest rate, expressed as a
	// fraction (0.12 means 12% per year).
	AnnualRate decimal.Decimal
	// Duration is how long after activation the facility matures.
	Duration time.Duration
	// InterestAccrualCycleInterval is how often accrued interest is
	// posted as an obligation (e.g. monthly).
	InterestAccrualCycleInterval time.Duration
	// ObligationOverdueAfter is how long past its due date an
	// obligation is still merely Due before becoming Overdue.
	ObligationOverdueAfter time.Duration
	// ObligationLiquidationAfter is how long past its due date an
	// obligation may remain unpaid before liquidation may start against
	// it, independent of whether it has also become Defaulted.
	ObligationLiquidationAfter time.Duration
	// ObligationDefaultedAfter is how long past its due date an
	// obligation remains unpaid before it is marked Defaulted.
	ObligationDefaultedAfter time.Duration
	// InitialCVL is carried with the terms; nothing in this package reads
	// it. A proposal's FullyCollateralized threshold is MarginCallCVL.
	InitialCVL money.CVLPct
	// MarginCallCVL is the ratio below which an active facility is
	// UnderCollateralized and a margin call is due.
	MarginCallCVL money.CVLPct
	// LiquidationCVL is the ratio below which collateral is
	// insufficient to cover the loan even at liquidation prices,
	// triggering automatic liquidation.
	LiquidationCVL money.CVLPct
}

// AccountIDs are the external ledger accounts one facility posts
// against, fixed for the facility's lifetime.
type AccountIDs struct {
	CollateralAccountID          string
	FacilityAccountID            string
	DisbursedReceivableAccountID string
	InterestReceivableAccountID  string
	InterestIncomeAccountID      string
}
