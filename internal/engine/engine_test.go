package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/feed"
	"github.com/eventkernel/tradeengine/internal/guardrail"
	"github.com/eventkernel/tradeengine/internal/market"
	"github.com/eventkernel/tradeengine/internal/matching"
	"github.com/eventkernel/tradeengine/internal/risk"
)

// fakeVendor serves a fixed run of daily candles for one symbol, entirely
// from memory, and doubles as the run's broker.
type fakeVendor struct {
	symbol string
	info   market.SymbolInfo
	days   []time.Time
	closes []decimal.Decimal
}

func newFakeVendor() *fakeVendor {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{4000, 4010, 4005, 4020, 4040, 4015, 3990, 3980, 4050, 4100, 4090, 4120}
	v := &fakeVendor{
		symbol: "ES",
		info: market.SymbolInfo{
			Symbol: "ES", TickSize: decimal.NewFromFloat(0.25),
			ValuePerPoint: decimal.NewFromInt(50), Currency: "USD",
			InitialMargin: decimal.NewFromInt(500),
		},
	}
	for i, c := range closes {
		v.days = append(v.days, start.AddDate(0, 0, i))
		v.closes = append(v.closes, decimal.NewFromFloat(c))
	}
	return v
}

func (v *fakeVendor) Name() string { return "fake" }

func (v *fakeVendor) FetchMonth(ctx context.Context, sub market.Subscription, year int, month time.Month) (market.TimeSlice, error) {
	var records []market.Record
	for i, day := range v.days {
		if day.Year() != year || day.Month() != month {
			continue
		}
		end := day.AddDate(0, 0, 1)
		records = append(records, market.Candle{
			Sym: v.symbol, Start: day, End: end, Res: market.Day(),
			Open: v.closes[i], High: v.closes[i], Low: v.closes[i], Close: v.closes[i],
			Volume: decimal.NewFromInt(100), Closed: true,
		})
	}
	return market.TimeSlice{Subscription: sub, Year: year, Month: month, Records: records}, nil
}

func (v *fakeVendor) StreamPrimary(ctx context.Context, sub market.Subscription) (<-chan market.Record, error) {
	ch := make(chan market.Record)
	close(ch)
	return ch, nil
}

func (v *fakeVendor) HealthCheck(ctx context.Context) error { return nil }

func (v *fakeVendor) NativeResolutions(ctx context.Context, symbol string, dataType market.BaseDataType) ([]market.Resolution, error) {
	if dataType == market.BaseDataCandle {
		return []market.Resolution{market.Day()}, nil
	}
	return []market.Resolution{market.Instant()}, nil
}

func (v *fakeVendor) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	return v.info, nil
}

func (v *fakeVendor) RateToAccountCurrency(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	return 0, nil
}

var _ market.Vendor = (*fakeVendor)(nil)
var _ market.Broker = (*fakeVendor)(nil)

// countingStrategy enters long on the first bar and exits on the last,
// producing a small, deterministic sequence of orders.
type countingStrategy struct {
	symbol string
	qty    decimal.Decimal
	seen   int
	total  int
}

func (s *countingStrategy) OnData(ctx context.Context, records []market.Record, account AccountView) ([]market.Order, error) {
	var orders []market.Order
	for _, r := range records {
		candle, ok := r.(market.Candle)
		if !ok || !candle.Closed {
			continue
		}
		s.seen++
		pos, held := account.Positions[s.symbol]
		isLong := held && !pos.IsFlat()
		switch {
		case s.seen == 1 && !isLong:
			orders = append(orders, market.Order{Symbol: s.symbol, Side: market.SideBuy, Kind: market.OrderEnterLong, TIF: market.TIFDay, Quantity: s.qty})
		case s.seen == s.total && isLong:
			orders = append(orders, market.Order{Symbol: s.symbol, Side: market.SideSell, Kind: market.OrderExitLong, TIF: market.TIFDay, Quantity: pos.Quantity})
		}
	}
	return orders, nil
}

func runFixture(t *testing.T) *Engine {
	t.Helper()
	vendor := newFakeVendor()
	feeder := feed.New(context.Background(), vendor, nil)
	cfg := Config{
		AccountID: "acct-1", AccountCurrency: "USD", StartingCash: decimal.NewFromInt(1_000_000),
		RiskPolicy: risk.DefaultPolicy(), MatchingConfig: matching.DefaultConfig(),
		GuardrailConfig: guardrail.DefaultMonitorConfig(),
	}
	eng := New(cfg, vendor, vendor, feeder, nil)

	subs := []market.Subscription{
		{Symbol: "ES", DataType: market.BaseDataCandle, Resolution: market.Day(), Primary: true},
	}
	strat := &countingStrategy{symbol: "ES", qty: decimal.NewFromInt(1), total: len(vendor.days)}

	start := vendor.days[0]
	end := vendor.days[len(vendor.days)-1].AddDate(0, 0, 1)
	if err := eng.Run(context.Background(), subs, start, start, end, strat); err != nil {
		t.Fatalf("run: %v", err)
	}
	return eng
}

func TestRunProducesDeterministicTraceHash(t *testing.T) {
	h1, err := runFixture(t).Trace().Hash()
	if err != nil {
		t.Fatalf("hash run 1: %v", err)
	}
	h2, err := runFixture(t).Trace().Hash()
	if err != nil {
		t.Fatalf("hash run 2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical trace hashes across replays of identical input, got %s and %s", h1, h2)
	}
}

func TestRunEntersAndExitsPosition(t *testing.T) {
	eng := runFixture(t)
	if eng.Phase() != PhaseStopped {
		t.Fatalf("expected the run to finish stopped, got %s", eng.Phase())
	}
	entries := eng.Trace().Entries()
	var fills int
	for _, e := range entries {
		if e.Decision == DecisionFill {
			fills++
		}
	}
	if fills != 2 {
		t.Fatalf("expected one entry fill and one exit fill, got %d fill entries", fills)
	}
	view := eng.AccountView()
	if pos, held := view.Positions["ES"]; held && !pos.IsFlat() {
		t.Errorf("expected the position to be flat after the exit fill, got %+v", pos)
	}
}
