package credit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/northstarcredit/core/internal/authz"
	"github.com/northstarcredit/core/pkg/money"
)

func auditInfo() authz.AuditInfo {
	return authz.NewAuditInfo(authz.UserSubject("sub-1"), clock())
}

func testTerms() Terms {
	return Terms{
		AnnualRate:                   decimal.NewFromFloat(0.12),
		Duration:                     365 * 24 * time.Hour,
		InterestAccrualCycleInterval: 30 * 24 * time.Hour,
		ObligationOverdueAfter:       24 * time.Hour,
		ObligationLiquidationAfter:   48 * time.Hour,
		ObligationDefaultedAfter:     72 * time.Hour,
		InitialCVL:                   money.NewCVLPct(decimal.NewFromInt(140)),
		MarginCallCVL:                money.NewCVLPct(decimal.NewFromInt(125)),
		LiquidationCVL:               money.NewCVLPct(decimal.NewFromInt(105)),
	}
}

func testAccounts() AccountIDs {
	return AccountIDs{
		CollateralAccountID:          "acct-collateral",
		FacilityAccountID:            "acct-facility",
		DisbursedReceivableAccountID: "acct-disbursed-receivable",
		InterestReceivableAccountID:  "acct-interest-receivable",
		InterestIncomeAccountID:      "acct-interest-income",
	}
}
