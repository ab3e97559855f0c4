// Package matching is the paper market: it tracks the last bid/ask/price
// seen for every symbol and matches the open-order book against each
// incoming primitive, emitting fills the ledger then applies.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/enginerr"
	"github.com/eventkernel/tradeengine/internal/ledger"
	"github.com/eventkernel/tradeengine/internal/market"
	"github.com/eventkernel/tradeengine/internal/risk"
	"github.com/eventkernel/tradeengine/internal/telemetry"
	"github.com/eventkernel/tradeengine/internal/testsupport"
)

// PriceOracle resolves symbol information (tick size, value per point,
// margin, currency) for a symbol.
type PriceOracle func(ctx context.Context, symbol string) (market.SymbolInfo, error)

// priceState is the engine's current view of a symbol's market.
type priceState struct {
	bid, ask, last decimal.Decimal
	haveBid, haveAsk, haveLast bool
}

func (p priceState) buyReferencePrice() (decimal.Decimal, bool) {
	if p.haveAsk {
		return p.ask, true
	}
	if p.haveLast {
		return p.last, true
	}
	return decimal.Zero, false
}

func (p priceState) sellReferencePrice() (decimal.Decimal, bool) {
	if p.haveBid {
		return p.bid, true
	}
	if p.haveLast {
		return p.last, true
	}
	return decimal.Zero, false
}

// Config configures slippage applied to market-style fills.
type Config struct {
	SlippageBps   decimal.Decimal
	CommissionPerUnit decimal.Decimal
}

// DefaultConfig returns a zero-friction configuration.
func DefaultConfig() Config {
	return Config{SlippageBps: decimal.Zero, CommissionPerUnit: decimal.Zero}
}

// Engine is the paper matching engine for one account.
type Engine struct {
	cfg        Config
	accountant *ledger.Accountant
	symbolInfo PriceOracle
	risk       risk.Policy
	peakEquity decimal.Decimal

	prices map[string]*priceState
	open   map[string][]*market.Order // FIFO per symbol
}

// New builds a matching Engine.
func New(accountant *ledger.Accountant, symbolInfo PriceOracle, policy risk.Policy, cfg Config) *Engine {
	return &Engine{
		cfg:        cfg,
		accountant: accountant,
		symbolInfo: symbolInfo,
		risk:       policy,
		prices:     make(map[string]*priceState),
		open:       make(map[string][]*market.Order),
		peakEquity: accountant.Ledger.Cash,
	}
}

func (e *Engine) state(symbol string) *priceState {
	s, ok := e.prices[symbol]
	if !ok {
		s = &priceState{}
		e.prices[symbol] = s
	}
	return s
}

// OnRecord updates the price oracle from r and matches every open order for
// r's symbol against the new state, returning any fills produced. Only
// Tick, Quote, and closed Candle/QuoteBar records move the oracle; an
// in-progress bar is ignored: matching operates on the authoritative last
// trade/quote, not a provisional high/low.
func (e *Engine) OnRecord(ctx context.Context, r market.Record) ([]market.Fill, error) {
	s := e.state(r.Symbol())
	switch v := r.(type) {
	case market.Tick:
		s.last, s.haveLast = v.Price, true
	case market.Quote:
		s.bid, s.haveBid = v.Bid, true
		s.ask, s.haveAsk = v.Ask, true
	case market.Candle:
		if !v.Closed {
			return nil, nil
		}
		s.last, s.haveLast = v.Close, true
	case market.QuoteBar:
		if !v.Closed {
			return nil, nil
		}
		s.bid, s.haveBid = v.Bid.Close, true
		s.ask, s.haveAsk = v.Ask.Close, true
	default:
		return nil, nil
	}
	e.cancelExpiredDayOrders(ctx, r.Symbol(), r.Time())
	return e.matchSymbol(ctx, r.Symbol())
}

// cancelExpiredDayOrders cancels every open TIFDay order for symbol whose
// submission day (UTC calendar date) precedes at's: a day order lives only
// through the session it was submitted in, and event-time, not wall-clock
// time, is what rolls that session over in a backtest.
func (e *Engine) cancelExpiredDayOrders(ctx context.Context, symbol string, at time.Time) {
	var expired []uuid.UUID
	for _, o := range e.open[symbol] {
		if o.TIF == market.TIFDay && !sameUTCDay(o.SubmittedAt, at) {
			expired = append(expired, o.ID)
		}
	}
	for _, id := range expired {
		_ = e.Cancel(ctx, symbol, id)
	}
}

func sameUTCDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Submit accepts a new order into the book after a risk-policy and margin
// check, then makes one immediate matching pass (a market order against an
// already-known price fills right away rather than waiting for the next
// tick).
func (e *Engine) Submit(ctx context.Context, o *market.Order) ([]market.Fill, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.Status = market.OrderPending
	o.SubmittedAt = testsupport.Now(ctx)
	o.UpdatedAt = o.SubmittedAt

	info, err := e.symbolInfo(ctx, o.Symbol)
	if err != nil {
		o.Status = market.OrderRejected
		o.RejectReason = err.Error()
		return nil, fmt.Errorf("matching: submit %s: %w", o.Symbol, err)
	}

	isReducing := o.IsExit()
	if !isReducing {
		notional := o.Quantity.Mul(info.InitialMargin)
		if err := e.risk.Check(risk.CheckInput{
			OpenPositions:    e.countOpenPositions(),
			AccountEquity:    e.currentEquity(),
			PeakEquity:       e.peakEquity,
			ProposedNotional: notional,
			IsNewPosition:    e.positionFor(o.Symbol).IsFlat(),
		}); err != nil {
			o.Status = market.OrderRejected
			o.RejectReason = err.Error()
			telemetry.RecordRejection(ctx, o.Symbol, err.Error())
			return nil, err
		}
	}

	if err := e.accountant.CommitMargin(ctx, o.Symbol, o.Quantity, info, isReducing); err != nil {
		o.Status = market.OrderRejected
		o.RejectReason = err.Error()
		telemetry.RecordRejection(ctx, o.Symbol, err.Error())
		return nil, err
	}

	o.Status = market.OrderAccepted
	e.open[o.Symbol] = append(e.open[o.Symbol], o)

	fills, err := e.matchSymbol(ctx, o.Symbol)
	if err != nil {
		return fills, err
	}
	if o.TIF == market.TIFIOC || o.TIF == market.TIFFOK {
		e.cancelUnfilled(ctx, o)
	}
	return fills, nil
}

// Cancel removes order id from the book if it is still open.
func (e *Engine) Cancel(ctx context.Context, symbol string, id uuid.UUID) error {
	queue := e.open[symbol]
	for i, o := range queue {
		if o.ID == id {
			if o.Status == market.OrderFilled {
				return fmt.Errorf("matching: cancel %s: %w", id, enginerr.ErrInvalidOrderState)
			}
			o.Status = market.OrderCancelled
			o.UpdatedAt = testsupport.Now(ctx)
			e.open[symbol] = append(queue[:i], queue[i+1:]...)
			if info, err := e.symbolInfo(ctx, symbol); err == nil {
				remaining := o.Quantity.Sub(o.FilledQuantity)
				_ = e.accountant.ReleaseMargin(ctx, remaining, info)
			}
			return nil
		}
	}
	return fmt.Errorf("matching: cancel %s: %w (not found)", id, enginerr.ErrInvalidOrderState)
}

func (e *Engine) cancelUnfilled(ctx context.Context, o *market.Order) {
	if o.Status == market.OrderFilled {
		return
	}
	_ = e.Cancel(ctx, o.Symbol, o.ID)
}

func (e *Engine) countOpenPositions() int {
	n := 0
	for _, p := range e.accountant.Ledger.Positions {
		if !p.IsFlat() {
			n++
		}
	}
	return n
}

func (e *Engine) positionFor(symbol string) market.Position {
	if p, ok := e.accountant.Ledger.Positions[symbol]; ok {
		return *p
	}
	return market.Position{Symbol: symbol}
}

func (e *Engine) currentEquity() decimal.Decimal {
	lastPrice := make(map[string]decimal.Decimal)
	valuePerPoint := make(map[string]decimal.Decimal)
	for sym, s := range e.prices {
		if s.haveLast {
			lastPrice[sym] = s.last
		} else if s.haveBid && s.haveAsk {
			lastPrice[sym] = s.bid.Add(s.ask).Div(decimal.NewFromInt(2))
		}
	}
	eq := e.accountant.Equity(lastPrice, valuePerPoint)
	if eq.GreaterThan(e.peakEquity) {
		e.peakEquity = eq
	}
	return eq
}

// matchSymbol walks symbol's FIFO open-order queue once, filling whatever
// can fill against the current price state.
func (e *Engine) matchSymbol(ctx context.Context, symbol string) ([]market.Fill, error) {
	s := e.state(symbol)
	queue := e.open[symbol]
	if len(queue) == 0 {
		return nil, nil
	}
	info, err := e.symbolInfo(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("matching: symbol info %s: %w", symbol, err)
	}

	now := testsupport.Now(ctx)
	var fills []market.Fill
	var remaining []*market.Order
	for _, o := range queue {
		fill, ok := e.tryFill(o, s, info, now)
		if !ok {
			remaining = append(remaining, o)
			continue
		}
		fills = append(fills, fill)
		o.Status = market.OrderFilled
		o.FilledQuantity = o.Quantity
		o.AverageFillPrice = fill.Price
		o.UpdatedAt = fill.At
		telemetry.RecordFill(ctx, symbol, fill.Quantity.InexactFloat64(), fill.Price.InexactFloat64())

		if _, err := e.accountant.ApplyFill(ctx, fill, info); err != nil {
			return fills, err
		}
		if o.Kind == market.OrderBracket {
			e.spawnBracketChildren(o, now)
		}
	}
	// keep any bracket children spawned during the walk, queued after the
	// orders that were already waiting.
	e.open[symbol] = append(remaining, e.open[symbol][len(queue):]...)
	return fills, nil
}

// tryFill attempts to match a single order against the current price
// state, returning (Fill{}, false) if it cannot yet fill. now stamps any
// resulting fill, so the same input stream always produces the same trace
// regardless of wall-clock time.
func (e *Engine) tryFill(o *market.Order, s *priceState, info market.SymbolInfo, now time.Time) (market.Fill, bool) {
	ref, ok := e.referencePrice(o, s)
	if !ok {
		return market.Fill{}, false
	}

	switch o.Kind {
	case market.OrderMarket, market.OrderEnterLong, market.OrderEnterShort, market.OrderExitLong, market.OrderExitShort, market.OrderBracket:
		return e.fillAt(o, e.applySlippage(ref, o.Side), info, now), true

	case market.OrderLimit:
		if o.Side == market.SideBuy && ref.LessThanOrEqual(o.LimitPrice) {
			return e.fillAt(o, decimal.Min(ref, o.LimitPrice), info, now), true
		}
		if o.Side == market.SideSell && ref.GreaterThanOrEqual(o.LimitPrice) {
			return e.fillAt(o, decimal.Max(ref, o.LimitPrice), info, now), true
		}
		return market.Fill{}, false

	case market.OrderStopMarket:
		if e.stopTriggered(o, ref) {
			return e.fillAt(o, e.applySlippage(ref, o.Side), info, now), true
		}
		return market.Fill{}, false

	case market.OrderStopLimit:
		if !e.stopTriggered(o, ref) {
			return market.Fill{}, false
		}
		if o.Side == market.SideBuy && ref.LessThanOrEqual(o.LimitPrice) {
			return e.fillAt(o, decimal.Min(ref, o.LimitPrice), info, now), true
		}
		if o.Side == market.SideSell && ref.GreaterThanOrEqual(o.LimitPrice) {
			return e.fillAt(o, decimal.Max(ref, o.LimitPrice), info, now), true
		}
		return market.Fill{}, false

	case market.OrderMarketIfTouched:
		if e.touchTriggered(o, ref) {
			return e.fillAt(o, ref, info, now), true
		}
		return market.Fill{}, false

	default:
		return market.Fill{}, false
	}
}

func (e *Engine) referencePrice(o *market.Order, s *priceState) (decimal.Decimal, bool) {
	if o.Side == market.SideBuy {
		return s.buyReferencePrice()
	}
	return s.sellReferencePrice()
}

func (e *Engine) stopTriggered(o *market.Order, ref decimal.Decimal) bool {
	if o.Side == market.SideBuy {
		return ref.GreaterThanOrEqual(o.StopPrice)
	}
	return ref.LessThanOrEqual(o.StopPrice)
}

// touchTriggered is the favourable-direction counterpart of stopTriggered:
// a market-if-touched buy triggers when price falls to or below the touch
// price (a better entry), the mirror of a stop's adverse-direction trigger.
func (e *Engine) touchTriggered(o *market.Order, ref decimal.Decimal) bool {
	if o.Side == market.SideBuy {
		return ref.LessThanOrEqual(o.StopPrice)
	}
	return ref.GreaterThanOrEqual(o.StopPrice)
}

func (e *Engine) applySlippage(price decimal.Decimal, side market.OrderSide) decimal.Decimal {
	if e.cfg.SlippageBps.IsZero() {
		return price
	}
	factor := e.cfg.SlippageBps.Div(decimal.NewFromInt(10000))
	if side == market.SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(factor))
}

func (e *Engine) fillAt(o *market.Order, price decimal.Decimal, info market.SymbolInfo, now time.Time) market.Fill {
	rounded := info.RoundToTick(price)
	commission := o.Quantity.Mul(e.cfg.CommissionPerUnit)
	return market.Fill{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Price:      rounded,
		At:         now,
		Commission: commission,
	}
}

// spawnBracketChildren enqueues the stop-loss and take-profit exit orders
// for a just-filled bracket parent.
func (e *Engine) spawnBracketChildren(parent *market.Order, now time.Time) {
	exitSide := market.SideSell
	exitKind := market.OrderExitLong
	if parent.Side == market.SideSell {
		exitSide = market.SideBuy
		exitKind = market.OrderExitShort
	}
	stop := &market.Order{
		ID: uuid.New(), AccountID: parent.AccountID, Symbol: parent.Symbol,
		Side: exitSide, Kind: market.OrderStopMarket, TIF: market.TIFGTC,
		Quantity: parent.Quantity, StopPrice: parent.BracketStopLoss,
		Status: market.OrderAccepted, SubmittedAt: now, UpdatedAt: now,
	}
	takeProfit := &market.Order{
		ID: uuid.New(), AccountID: parent.AccountID, Symbol: parent.Symbol,
		Side: exitSide, Kind: exitKind, TIF: market.TIFGTC,
		Quantity: parent.Quantity, LimitPrice: parent.BracketTakeProfit,
		Status: market.OrderAccepted, SubmittedAt: now, UpdatedAt: now,
	}
	// the take-profit leg matches like a limit order against the exit price.
	takeProfit.Kind = market.OrderLimit
	e.open[parent.Symbol] = append(e.open[parent.Symbol], stop, takeProfit)
}

// OpenOrders returns a copy of symbol's current FIFO open-order queue.
func (e *Engine) OpenOrders(symbol string) []market.Order {
	queue := e.open[symbol]
	out := make([]market.Order, len(queue))
	for i, o := range queue {
		out[i] = *o
	}
	return out
}
