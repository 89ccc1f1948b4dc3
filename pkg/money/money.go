// Package money defines the platform's fixed-point money types. Every
// amount that crosses a module boundary is one of these, never a raw
// float64 or a bare int with an implicit unit.
package money

import "github.com/shopspring/decimal"

// Satoshis is a bitcoin amount denominated in its smallest unit (1 BTC =
// 100,000,000 Satoshis).
type Satoshis int64

const satoshisPerBTC = 100_000_000

// ToBTC converts to a decimal BTC amount.
func (s Satoshis) ToBTC() decimal.Decimal {
	return decimal.NewFromInt(int64(s)).Div(decimal.NewFromInt(satoshisPerBTC))
}

// IsZero reports whether s is exactly zero.
func (s Satoshis) IsZero() bool { return s == 0 }

// UsdCents is a USD amount denominated in its smallest unit (1 USD = 100
// UsdCents).
type UsdCents int64

// ToUSD converts to a decimal USD amount.
func (c UsdCents) ToUSD() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(100))
}

// UsdCentsFromUSD converts a decimal USD amount to whole cents, rounding
// half away from zero.
func UsdCentsFromUSD(usd decimal.Decimal) UsdCents {
	return UsdCents(usd.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// IsZero reports whether c is exactly zero.
func (c UsdCents) IsZero() bool { return c == 0 }
