package types

import (
	"github.com/shopspring/decimal"
)

// Money is a two-decimal currency amount that serializes as a fixed-point string.
type Money struct {
	decimal.Decimal
}

// NewMoney rounds the amount to cents, half away from zero.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: RoundCents(d)}
}

// RoundCents rounds to two decimal places, half away from zero.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func (m Money) String() string {
	return m.StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.StringFixed(2) + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	return m.Decimal.UnmarshalJSON(data)
}
