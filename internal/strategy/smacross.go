// Package strategy holds engine.Strategy implementations. SMACrossover is a
// minimal moving-average crossover strategy: it goes long when the fast
// average crosses above the slow average while flat, and exits when it
// crosses back below.
package strategy

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/engine"
	"github.com/eventkernel/tradeengine/internal/market"
)

// SMACrossover tracks a fast/slow simple moving average per symbol over
// closed candles and enters/exits a single long position on crossover.
type SMACrossover struct {
	Symbol     string
	FastPeriod int
	SlowPeriod int
	Quantity   decimal.Decimal

	closes   []decimal.Decimal
	wasAbove bool
	haveCross bool
}

// NewSMACrossover builds a crossover strategy for one symbol.
func NewSMACrossover(symbol string, fast, slow int, quantity decimal.Decimal) *SMACrossover {
	return &SMACrossover{Symbol: symbol, FastPeriod: fast, SlowPeriod: slow, Quantity: quantity}
}

// OnData implements engine.Strategy.
func (s *SMACrossover) OnData(ctx context.Context, records []market.Record, account engine.AccountView) ([]market.Order, error) {
	var orders []market.Order
	for _, r := range records {
		candle, ok := r.(market.Candle)
		if !ok || !candle.Closed || candle.Symbol() != s.Symbol {
			continue
		}
		s.closes = append(s.closes, candle.Close)
		if len(s.closes) > s.SlowPeriod {
			s.closes = s.closes[len(s.closes)-s.SlowPeriod:]
		}
		if len(s.closes) < s.SlowPeriod {
			continue
		}

		fast := sma(s.closes[len(s.closes)-s.FastPeriod:])
		slow := sma(s.closes)
		above := fast.GreaterThan(slow)

		pos, held := account.Positions[s.Symbol]
		isLong := held && !pos.IsFlat() && pos.Side == market.PositionLong

		if !s.haveCross {
			s.wasAbove = above
			s.haveCross = true
			continue
		}

		switch {
		case above && !s.wasAbove && !isLong:
			orders = append(orders, market.Order{
				ID: uuid.New(), Symbol: s.Symbol, Side: market.SideBuy, Kind: market.OrderEnterLong,
				TIF: market.TIFDay, Quantity: s.Quantity,
			})
		case !above && s.wasAbove && isLong:
			orders = append(orders, market.Order{
				ID: uuid.New(), Symbol: s.Symbol, Side: market.SideSell, Kind: market.OrderExitLong,
				TIF: market.TIFDay, Quantity: pos.Quantity,
			})
		}
		s.wasAbove = above
	}
	return orders, nil
}

func sma(window []decimal.Decimal) decimal.Decimal {
	if len(window) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range window {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(len(window))))
}
