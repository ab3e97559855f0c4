package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of a held position.
type PositionSide int

const (
	PositionFlat PositionSide = iota
	PositionLong
	PositionShort
)

func (s PositionSide) String() string {
	switch s {
	case PositionLong:
		return "long"
	case PositionShort:
		return "short"
	default:
		return "flat"
	}
}

// Position is the running state of an account's holding in one symbol: a
// weighted-average entry price, the still-open quantity, and the running
// booked (realised) P&L accumulated across partial reductions.
type Position struct {
	AccountID        string
	Symbol           string
	Currency         string
	Side             PositionSide
	Quantity         decimal.Decimal
	AverageEntryPrice decimal.Decimal
	OpenedAt         time.Time
	UpdatedAt        time.Time
	BookedPnL        decimal.Decimal
	MarginHeld       decimal.Decimal
}

// IsFlat reports whether the position currently holds no quantity.
func (p Position) IsFlat() bool {
	return p.Quantity.IsZero() || p.Side == PositionFlat
}

// OpenPnL values the position against a current market price.
func (p Position) OpenPnL(marketPrice decimal.Decimal, valuePerPoint decimal.Decimal) decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	diff := marketPrice.Sub(p.AverageEntryPrice)
	if p.Side == PositionShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity).Mul(valuePerPoint)
}
