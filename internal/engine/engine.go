// Package engine is the event-driven loop tying every other collaborator
// together: it streams historical data through the subscription handler's
// consolidators, keeps the paper matching engine's price oracle current,
// hands each step to a strategy callback once warm-up has elapsed, submits
// the orders that callback returns, and polls the guardrail health monitor
// once per step.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/enginerr"
	"github.com/eventkernel/tradeengine/internal/feed"
	"github.com/eventkernel/tradeengine/internal/guardrail"
	"github.com/eventkernel/tradeengine/internal/ledger"
	"github.com/eventkernel/tradeengine/internal/market"
	"github.com/eventkernel/tradeengine/internal/matching"
	"github.com/eventkernel/tradeengine/internal/risk"
	"github.com/eventkernel/tradeengine/internal/subscription"
	"github.com/eventkernel/tradeengine/internal/telemetry"
	"github.com/eventkernel/tradeengine/internal/testsupport"
)

// Phase is the engine loop's current lifecycle stage.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseWarmup        Phase = "warmup"
	PhaseRunning        Phase = "running"
	PhaseShuttingDown   Phase = "shutting_down"
	PhaseStopped        Phase = "stopped"
)

// Strategy is the callback the engine hands every step to once warm-up has
// elapsed. records is the primary record plus any bars a consolidator
// closed as a result of it, in dispatch order; account is a snapshot of the
// ledger at the moment of the call. Any orders returned are submitted to
// the matching engine in order.
type Strategy interface {
	OnData(ctx context.Context, records []market.Record, account AccountView) ([]market.Order, error)
}

// RateSource resolves a currency conversion rate, consulted by the ledger
// on every cross-currency fill.
type RateSource interface {
	Get(ctx context.Context, from, to string) (float64, bool, error)
	Set(ctx context.Context, from, to string, rate float64) error
}

// Config configures one engine run.
type Config struct {
	AccountID       string
	AccountCurrency string
	StartingCash    decimal.Decimal
	RiskPolicy      risk.Policy
	MatchingConfig  matching.Config
	GuardrailConfig guardrail.MonitorConfig
}

// Engine wires the subscription handler, historical feeder, matching
// engine, ledger, and guardrail monitor into a single run.
type Engine struct {
	cfg     Config
	vendor  market.Vendor
	broker  market.Broker
	store   *feed.Feeder
	cache   RateSource
	subs    *subscription.Handler
	ledger  *ledger.Accountant
	matcher *matching.Engine
	monitor *guardrail.HealthMonitor
	trace   *Trace

	phase Phase

	symbolInfoCache map[string]market.SymbolInfo
}

// New builds an Engine. cache may be nil, in which case every cross-currency
// rate lookup goes straight to the broker.
func New(cfg Config, vendor market.Vendor, broker market.Broker, feeder *feed.Feeder, cache RateSource, probes ...guardrail.Probe) *Engine {
	e := &Engine{
		cfg:             cfg,
		vendor:          vendor,
		broker:          broker,
		store:           feeder,
		cache:           cache,
		subs:            subscription.New(vendor),
		trace:           NewTrace(),
		phase:           PhaseInitializing,
		symbolInfoCache: make(map[string]market.SymbolInfo),
	}

	mktLedger := market.NewLedger(cfg.AccountID, cfg.AccountCurrency, cfg.StartingCash)
	e.ledger = ledger.New(mktLedger, e.resolveRate)

	policy := cfg.RiskPolicy
	if policy.MaxPositions == 0 && policy.MaxPositionSize.IsZero() {
		policy = risk.DefaultPolicy()
	}
	e.matcher = matching.New(e.ledger, e.symbolInfo, policy, cfg.MatchingConfig)

	monitorCfg := cfg.GuardrailConfig
	if monitorCfg.FailuresBeforeHalt <= 0 {
		monitorCfg = guardrail.DefaultMonitorConfig()
	}
	allProbes := append([]guardrail.Probe{e.vendorProbe()}, probes...)
	e.monitor = guardrail.NewHealthMonitor(monitorCfg, allProbes...)

	return e
}

// vendorProbe wraps the data vendor's own health check so a failing feed
// counts toward the halt escalation like any other probe.
func (e *Engine) vendorProbe() guardrail.Probe {
	return guardrail.FuncProbe{
		ProbeName: "vendor:" + e.vendor.Name(),
		Fn: func(ctx context.Context) guardrail.CheckResult {
			if err := e.vendor.HealthCheck(ctx); err != nil {
				return guardrail.CheckResult{Status: guardrail.StatusFailed, Message: err.Error()}
			}
			return guardrail.CheckResult{Status: guardrail.StatusOK}
		},
	}
}

func (e *Engine) symbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	if info, ok := e.symbolInfoCache[symbol]; ok {
		return info, nil
	}
	info, err := e.broker.SymbolInfo(ctx, symbol)
	if err != nil {
		return market.SymbolInfo{}, fmt.Errorf("engine: symbol info %s: %w", symbol, err)
	}
	e.symbolInfoCache[symbol] = info
	return info, nil
}

func (e *Engine) resolveRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if e.cache != nil {
		if rate, ok, err := e.cache.Get(ctx, from, to); err == nil && ok {
			return decimal.NewFromFloat(rate), nil
		}
	}
	rate, err := e.broker.RateToAccountCurrency(ctx, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("engine: rate %s->%s: %w", from, to, err)
	}
	if e.cache != nil {
		_ = e.cache.Set(ctx, from, to, rate)
	}
	return decimal.NewFromFloat(rate), nil
}

// Subscribe adds sub to the run's subscription book. Primary subscriptions
// must be added before any derived subscription built from them.
func (e *Engine) Subscribe(ctx context.Context, sub market.Subscription) error {
	return e.subs.Add(ctx, sub, testsupport.Now(ctx))
}

// Trace returns the run's decision trace.
func (e *Engine) Trace() *Trace { return e.trace }

// AccountView returns a snapshot of the current ledger state.
func (e *Engine) AccountView() AccountView {
	positions := make(map[string]market.Position, len(e.ledger.Ledger.Positions))
	for sym, p := range e.ledger.Ledger.Positions {
		positions[sym] = *p
	}
	return AccountView{
		Cash:       e.ledger.Ledger.Cash,
		MarginUsed: e.ledger.Ledger.MarginUsed,
		Equity:     e.ledger.Equity(e.lastPrices(), e.valuePerPoint()),
		Positions:  positions,
	}
}

func (e *Engine) lastPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(e.ledger.Ledger.Positions))
	for sym, p := range e.ledger.Ledger.Positions {
		if p.IsFlat() {
			continue
		}
		out[sym] = p.AverageEntryPrice
	}
	return out
}

func (e *Engine) valuePerPoint() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(e.symbolInfoCache))
	for sym, info := range e.symbolInfoCache {
		out[sym] = info.ValuePerPoint
	}
	return out
}

// Run streams every primary subscription in subs from warmupStart through
// end, building consolidator state and matching-engine price history from
// warmupStart but only handing steps to strategy once a record's time
// reaches runStart. It returns enginerr.ErrShutdownRequested if the
// guardrail monitor halts the run, or ctx.Err() on cancellation.
func (e *Engine) Run(ctx context.Context, subs []market.Subscription, warmupStart, runStart, end time.Time, strategy Strategy) error {
	e.setPhase(ctx, PhaseInitializing)
	for _, sub := range subs {
		if sub.Primary {
			if err := e.Subscribe(ctx, sub); err != nil {
				return err
			}
		}
	}
	for _, sub := range subs {
		if !sub.Primary {
			if err := e.Subscribe(ctx, sub); err != nil {
				return err
			}
		}
	}

	var primaries []market.Subscription
	for _, sub := range subs {
		if sub.Primary {
			primaries = append(primaries, sub)
		}
	}

	e.setPhase(ctx, PhaseWarmup)
	stream, errc := e.store.Run(ctx, primaries, warmupStart, end)

	running := false
	var orderSeq uint64
	for {
		select {
		case <-ctx.Done():
			e.setPhase(ctx, PhaseStopped)
			return ctx.Err()
		case err, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			if err != nil {
				e.setPhase(ctx, PhaseStopped)
				return err
			}
		case r, ok := <-stream:
			if !ok {
				e.setPhase(ctx, PhaseShuttingDown)
				e.setPhase(ctx, PhaseStopped)
				return nil
			}

			stepCtx := testsupport.WithClock(ctx, testsupport.FixedClock{T: r.Time()})

			dispatched := e.subs.Dispatch(r)
			for _, d := range dispatched {
				fills, err := e.matcher.OnRecord(stepCtx, d)
				if err != nil {
					return fmt.Errorf("engine: match record %s: %w", d.Symbol(), err)
				}
				e.appendFills(fills)
			}
			for _, closed := range e.subs.AdvanceTime(r.Time()) {
				fills, err := e.matcher.OnRecord(stepCtx, closed)
				if err != nil {
					return fmt.Errorf("engine: match time-advanced record %s: %w", closed.Symbol(), err)
				}
				e.appendFills(fills)
			}

			if !running && !r.Time().Before(runStart) {
				running = true
				e.setPhase(ctx, PhaseRunning)
			}
			if !running {
				continue
			}

			results := e.monitor.Poll(ctx)
			_ = results
			if halted, reason := e.monitor.IsHalted(); halted {
				e.trace.Append(TraceEntry{At: r.Time(), Decision: DecisionHalt, Reason: reason})
				e.setPhase(ctx, PhaseShuttingDown)
				e.setPhase(ctx, PhaseStopped)
				return fmt.Errorf("engine: %w: %s", enginerr.ErrShutdownRequested, reason)
			}

			orders, err := strategy.OnData(stepCtx, dispatched, e.AccountView())
			if err != nil {
				return fmt.Errorf("engine: strategy: %w", err)
			}
			for _, o := range orders {
				order := o
				order.AccountID = e.cfg.AccountID
				if order.ID == uuid.Nil {
					// derive the id from the run's submission count so a replay
					// of the same input assigns the same ids.
					orderSeq++
					order.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", e.cfg.AccountID, orderSeq)))
				}
				fills, err := e.matcher.Submit(stepCtx, &order)
				if err != nil {
					e.trace.Append(TraceEntry{At: r.Time(), Symbol: order.Symbol, OrderID: order.ID.String(), Decision: DecisionReject, Reason: err.Error()})
					continue
				}
				e.appendFills(fills)
			}
		}
	}
}

func (e *Engine) appendFills(fills []market.Fill) {
	for _, f := range fills {
		e.trace.Append(TraceEntry{
			At: f.At, Symbol: f.Symbol, OrderID: f.OrderID.String(),
			Decision: DecisionFill, Price: f.Price, Quantity: f.Quantity,
		})
	}
}

func (e *Engine) setPhase(ctx context.Context, phase Phase) {
	e.phase = phase
	telemetry.LogPhase(ctx, string(phase), nil)
}

// Phase returns the engine's current lifecycle stage.
func (e *Engine) Phase() Phase { return e.phase }
