package money

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CVLPct is a collateral-value-to-loan percentage (e.g. 140 means
// collateral is worth 140% of the outstanding loan amount). It is either a
// finite percentage or Infinite, which arises whenever there is collateral
// backing a zero outstanding balance: the ratio is mathematically
// unbounded, and callers must not attempt to Scale against it.
type CVLPct struct {
	value    decimal.Decimal
	infinite bool
}

// ZeroCVL is the percentage used when there is no collateral at all.
var ZeroCVL = CVLPct{value: decimal.Zero}

// InfiniteCVL is the percentage used when collateral backs a zero
// outstanding balance.
var InfiniteCVL = CVLPct{infinite: true}

// NewCVLPct wraps a finite percentage value.
func NewCVLPct(pct decimal.Decimal) CVLPct {
	return CVLPct{value: pct}
}

// CVLFromLoanAmounts computes the CVL percentage for a given collateral
// value and outstanding balance, both expressed in USD cents. Zero
// collateral is always ZeroCVL, regardless of the outstanding balance.
// Zero outstanding with nonzero collateral is always InfiniteCVL. Otherwise
// the ratio is truncated toward zero at 2 decimal places before being
// expressed as a percentage, so the result never overstates collateral
// coverage.
func CVLFromLoanAmounts(collateralValue, totalOutstanding UsdCents) CVLPct {
	if collateralValue.IsZero() {
		return ZeroCVL
	}

	if totalOutstanding.IsZero() {
		return InfiniteCVL
	}

	ratio := collateralValue.ToUSD().Div(totalOutstanding.ToUSD()).Truncate(2).Mul(decimal.NewFromInt(100))

	return CVLPct{value: ratio}
}

// IsZero reports whether the percentage is exactly zero. Infinite is never
// zero.
func (p CVLPct) IsZero() bool {
	return !p.infinite && p.value.IsZero()
}

// IsInfinite reports whether the percentage is unbounded.
func (p CVLPct) IsInfinite() bool {
	return p.infinite
}

// Scale applies the percentage to a USD amount, rounding half away from
// zero to the nearest cent. Scale panics if called on InfiniteCVL: callers
// must check IsInfinite first, since there is no meaningful scaled amount
// for an unbounded ratio.
func (p CVLPct) Scale(value UsdCents) UsdCents {
	if p.infinite {
		panic("money: cannot Scale by an infinite CVLPct")
	}

	dollars := value.ToUSD()
	scaled := dollars.Mul(p.value).Round(0)

	return UsdCents(scaled.IntPart())
}

// Add sums two percentages. Infinite is absorbing: Infinite plus anything
// is Infinite.
func (p CVLPct) Add(other CVLPct) CVLPct {
	if p.infinite || other.infinite {
		return InfiniteCVL
	}

	return CVLPct{value: p.value.Add(other.value)}
}

// Cmp orders two percentages, treating Infinite as greater than every
// finite value and equal to itself.
func (p CVLPct) Cmp(other CVLPct) int {
	switch {
	case p.infinite && other.infinite:
		return 0
	case p.infinite:
		return 1
	case other.infinite:
		return -1
	default:
		return p.value.Cmp(other.value)
	}
}

// IsSignificantlyLowerThan reports whether other exceeds p by more than
// buffer, i.e. other > p + buffer. It is used to decide whether a margin
// call or liquidation threshold has actually been crossed, rather than
// flapping on noise at the boundary.
func (p CVLPct) IsSignificantlyLowerThan(other, buffer CVLPct) bool {
	return other.Cmp(p.Add(buffer)) > 0
}

// String renders the percentage for logging.
func (p CVLPct) String() string {
	if p.infinite {
		return "Infinite"
	}

	return p.value.String()
}

// cvlJSON is the wire shape CVLPct round-trips through, since its fields
// are unexported and Infinite has no decimal representation.
type cvlJSON struct {
	Value    string `json:"value,omitempty"`
	Infinite bool   `json:"infinite,omitempty"`
}

func (p CVLPct) MarshalJSON() ([]byte, error) {
	if p.infinite {
		return json.Marshal(cvlJSON{Infinite: true})
	}

	return json.Marshal(cvlJSON{Value: p.value.String()})
}

func (p *CVLPct) UnmarshalJSON(data []byte) error {
	var j cvlJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	if j.Infinite {
		*p = InfiniteCVL
		return nil
	}

	d, err := decimal.NewFromString(j.Value)
	if err != nil {
		return err
	}

	*p = CVLPct{value: d}

	return nil
}
