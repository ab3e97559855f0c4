// Package ledger implements per-account margin commit/release and
// weighted-average position accounting: the ledger half of the paper
// trading kernel, consulted by the matching engine on order acceptance and
// updated on every fill.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/enginerr"
	"github.com/eventkernel/tradeengine/internal/market"
)

// RateResolver converts one unit of `from` into `to`, consulting a cache
// before falling back to a broker/vendor round trip.
type RateResolver func(ctx context.Context, from, to string) (decimal.Decimal, error)

// Accountant wraps a market.Ledger with the operations the matching engine
// needs: margin commit/release on order acceptance, and position
// maintenance on fill.
type Accountant struct {
	Ledger *market.Ledger
	Rate   RateResolver
}

// New wraps ledger with a rate resolver (may be nil if the account only
// ever trades in its own currency).
func New(ledger *market.Ledger, rate RateResolver) *Accountant {
	if rate == nil {
		rate = func(ctx context.Context, from, to string) (decimal.Decimal, error) {
			if from == to {
				return decimal.NewFromInt(1), nil
			}
			return decimal.Zero, fmt.Errorf("ledger: no rate resolver configured for %s->%s", from, to)
		}
	}
	return &Accountant{Ledger: ledger, Rate: rate}
}

func (a *Accountant) toAccountCurrency(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := a.Rate(ctx, currency, a.Ledger.AccountCurrency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: fx conversion %s->%s: %w", currency, a.Ledger.AccountCurrency, err)
	}
	return amount.Mul(rate), nil
}

// RequiredMargin returns the margin order quantity at info's InitialMargin
// per unit would require, in the account's own currency.
func (a *Accountant) RequiredMargin(ctx context.Context, quantity decimal.Decimal, info market.SymbolInfo) (decimal.Decimal, error) {
	native := quantity.Mul(info.InitialMargin)
	return a.toAccountCurrency(ctx, native, info.Currency)
}

// CommitMargin reserves the margin a new order would require. Reducing an
// existing position (quantity not exceeding the current open quantity) is
// always allowed regardless of available margin: exits never get
// risk-gated.
func (a *Accountant) CommitMargin(ctx context.Context, symbol string, quantity decimal.Decimal, info market.SymbolInfo, isReducing bool) error {
	if isReducing {
		return nil
	}
	required, err := a.RequiredMargin(ctx, quantity, info)
	if err != nil {
		return err
	}
	if required.GreaterThan(a.Ledger.MarginAvailable()) {
		return fmt.Errorf("ledger: margin required %s exceeds available %s: %w", required, a.Ledger.MarginAvailable(), enginerr.ErrInsufficientFunds)
	}
	a.Ledger.MarginUsed = a.Ledger.MarginUsed.Add(required)
	return nil
}

// ReleaseMargin gives back margin held against a cancelled or rejected
// order.
func (a *Accountant) ReleaseMargin(ctx context.Context, quantity decimal.Decimal, info market.SymbolInfo) error {
	released, err := a.RequiredMargin(ctx, quantity, info)
	if err != nil {
		return err
	}
	a.Ledger.MarginUsed = a.Ledger.MarginUsed.Sub(released)
	if a.Ledger.MarginUsed.IsNegative() {
		a.Ledger.MarginUsed = decimal.Zero
	}
	return nil
}

// ApplyFill updates the account's position in fill.Symbol with a matched
// fill, maintaining a weighted-average entry price on increases and
// booking realised P&L (converted to the account currency) on reductions,
// closes, and reversals.
func (a *Accountant) ApplyFill(ctx context.Context, fill market.Fill, info market.SymbolInfo) (market.Position, error) {
	pos, ok := a.Ledger.Positions[fill.Symbol]
	if !ok {
		pos = &market.Position{
			AccountID: a.Ledger.AccountID,
			Symbol:    fill.Symbol,
			Currency:  info.Currency,
			Side:      market.PositionFlat,
		}
		a.Ledger.Positions[fill.Symbol] = pos
	}

	fillSideSign := decimal.NewFromInt(1)
	if fill.Side == market.SideSell {
		fillSideSign = decimal.NewFromInt(-1)
	}
	posSideSign := decimal.NewFromInt(1)
	if pos.Side == market.PositionShort {
		posSideSign = decimal.NewFromInt(-1)
	}

	if pos.IsFlat() || fillSideSign.Equal(posSideSign) {
		// opening or adding in the same direction: weighted-average entry.
		newQty := pos.Quantity.Add(fill.Quantity)
		if pos.IsFlat() {
			pos.AverageEntryPrice = fill.Price
			pos.Side = sideFromFill(fill.Side)
		} else {
			totalCost := pos.AverageEntryPrice.Mul(pos.Quantity).Add(fill.Price.Mul(fill.Quantity))
			pos.AverageEntryPrice = totalCost.Div(newQty)
		}
		pos.Quantity = newQty
		pos.UpdatedAt = fill.At
		if pos.OpenedAt.IsZero() {
			pos.OpenedAt = fill.At
		}
		return *pos, nil
	}

	// opposite direction: reduces, closes, or reverses the position.
	closingQty := decimal.Min(pos.Quantity, fill.Quantity)
	diff := fill.Price.Sub(pos.AverageEntryPrice)
	if pos.Side == market.PositionShort {
		diff = diff.Neg()
	}
	realizedNative := diff.Mul(closingQty).Mul(info.ValuePerPoint)
	realized, err := a.toAccountCurrency(ctx, realizedNative, info.Currency)
	if err != nil {
		return market.Position{}, err
	}
	pos.BookedPnL = pos.BookedPnL.Add(realized)
	a.Ledger.Cash = a.Ledger.Cash.Add(realized)

	if err := a.ReleaseMargin(ctx, closingQty, info); err != nil {
		return market.Position{}, err
	}

	remaining := fill.Quantity.Sub(closingQty)
	pos.Quantity = pos.Quantity.Sub(closingQty)
	pos.UpdatedAt = fill.At

	if pos.Quantity.IsZero() {
		closed := *pos
		closed.Side = market.PositionFlat
		if remaining.IsZero() {
			a.Ledger.ClosedPositions = append(a.Ledger.ClosedPositions, closed)
			pos.Side = market.PositionFlat
			return closed, nil
		}
		// reversal: the fill over-closes the old position and opens a new
		// one in the opposite direction at the fill price.
		a.Ledger.ClosedPositions = append(a.Ledger.ClosedPositions, closed)
		pos.Side = sideFromFill(fill.Side)
		pos.Quantity = remaining
		pos.AverageEntryPrice = fill.Price
		pos.BookedPnL = decimal.Zero
		pos.OpenedAt = fill.At
		if err := a.CommitMargin(ctx, fill.Symbol, remaining, info, false); err != nil {
			return market.Position{}, err
		}
	}
	return *pos, nil
}

func sideFromFill(side market.OrderSide) market.PositionSide {
	if side == market.SideSell {
		return market.PositionShort
	}
	return market.PositionLong
}

// Equity returns cash plus the open P&L of every position, valued with
// lastPrice (keyed by symbol) and each symbol's ValuePerPoint.
func (a *Accountant) Equity(lastPrice map[string]decimal.Decimal, valuePerPoint map[string]decimal.Decimal) decimal.Decimal {
	total := a.Ledger.Cash
	for sym, pos := range a.Ledger.Positions {
		if pos.IsFlat() {
			continue
		}
		price, ok := lastPrice[sym]
		if !ok {
			continue
		}
		total = total.Add(pos.OpenPnL(price, valuePerPoint[sym]))
	}
	return total
}
