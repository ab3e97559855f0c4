package matching

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/ledger"
	"github.com/eventkernel/tradeengine/internal/market"
	"github.com/eventkernel/tradeengine/internal/risk"
	"github.com/eventkernel/tradeengine/internal/testsupport"
)

const testSymbol = "ES"

func testInfo() market.SymbolInfo {
	return market.SymbolInfo{
		Symbol: testSymbol, TickSize: decimal.NewFromFloat(0.25),
		ValuePerPoint: decimal.NewFromInt(50), Currency: "USD",
		InitialMargin: decimal.NewFromInt(500),
	}
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Accountant) {
	t.Helper()
	acct := ledger.New(market.NewLedger("acct-1", "USD", decimal.NewFromInt(1_000_000)), nil)
	oracle := func(ctx context.Context, symbol string) (market.SymbolInfo, error) { return testInfo(), nil }
	eng := New(acct, oracle, risk.DefaultPolicy(), DefaultConfig())
	return eng, acct
}

func tickAt(symbol string, price float64, at time.Time) market.Tick {
	return market.Tick{Sym: symbol, At: at, Price: decimal.NewFromFloat(price), Volume: decimal.NewFromInt(1)}
}

func TestMarketOrderFillsImmediatelyAtLastPrice(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4000, now)); err != nil {
		t.Fatalf("seed price: %v", err)
	}

	order := &market.Order{Symbol: testSymbol, Side: market.SideBuy, Kind: market.OrderMarket, TIF: market.TIFGTC, Quantity: decimal.NewFromInt(1)}
	fills, err := eng.Submit(ctx, order)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if !fills[0].Price.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("expected fill at 4000, got %s", fills[0].Price)
	}
}

func TestLimitOrderRestsUntilPriceCrosses(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4010, now)); err != nil {
		t.Fatalf("seed price: %v", err)
	}

	order := &market.Order{Symbol: testSymbol, Side: market.SideBuy, Kind: market.OrderLimit, TIF: market.TIFGTC, Quantity: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(4000)}
	fills, err := eng.Submit(ctx, order)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("a buy limit below the market should not fill yet, got %d fills", len(fills))
	}
	if got := len(eng.OpenOrders(testSymbol)); got != 1 {
		t.Fatalf("expected the limit order to rest in the book, got %d open orders", got)
	}

	fills, err = eng.OnRecord(ctx, tickAt(testSymbol, 3995, now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("price update: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("expected the resting limit to fill once price crosses, got %d", len(fills))
	}
	if got := len(eng.OpenOrders(testSymbol)); got != 0 {
		t.Errorf("expected the book to be empty after the fill, got %d", got)
	}
}

func TestStopMarketTriggersOnAdverseMove(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4000, now)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	order := &market.Order{Symbol: testSymbol, Side: market.SideSell, Kind: market.OrderStopMarket, TIF: market.TIFGTC, Quantity: decimal.NewFromInt(1), StopPrice: decimal.NewFromInt(3980)}
	if fills, err := eng.Submit(ctx, order); err != nil || len(fills) != 0 {
		t.Fatalf("expected no immediate fill, got fills=%v err=%v", fills, err)
	}

	fills, err := eng.OnRecord(ctx, tickAt(testSymbol, 3975, now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("price update: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("expected the sell stop to trigger once price falls through 3980, got %d fills", len(fills))
	}
}

func TestIOCCancelsUnfilledRemainder(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4010, now)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	order := &market.Order{Symbol: testSymbol, Side: market.SideBuy, Kind: market.OrderLimit, TIF: market.TIFIOC, Quantity: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(4000)}
	fills, err := eng.Submit(ctx, order)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("buy limit below market should not fill, got %d", len(fills))
	}
	if got := len(eng.OpenOrders(testSymbol)); got != 0 {
		t.Errorf("an IOC order that cannot fill immediately must not rest in the book, got %d open orders", got)
	}
}

func TestBracketParentFillSpawnsStopAndTarget(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4000, now)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	bracket := &market.Order{
		Symbol: testSymbol, Side: market.SideBuy, Kind: market.OrderBracket, TIF: market.TIFGTC,
		Quantity: decimal.NewFromInt(1), BracketStopLoss: decimal.NewFromInt(3950), BracketTakeProfit: decimal.NewFromInt(4050),
	}
	fills, err := eng.Submit(ctx, bracket)
	if err != nil {
		t.Fatalf("submit bracket: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("expected the bracket parent to fill at market, got %d", len(fills))
	}
	open := eng.OpenOrders(testSymbol)
	if len(open) != 2 {
		t.Fatalf("expected 2 child exit orders after the bracket parent fills, got %d", len(open))
	}
	var sawStop, sawLimit bool
	for _, o := range open {
		switch o.Kind {
		case market.OrderStopMarket:
			sawStop = true
			if !o.StopPrice.Equal(decimal.NewFromInt(3950)) {
				t.Errorf("expected stop child at 3950, got %s", o.StopPrice)
			}
		case market.OrderLimit:
			sawLimit = true
			if !o.LimitPrice.Equal(decimal.NewFromInt(4050)) {
				t.Errorf("expected target child at 4050, got %s", o.LimitPrice)
			}
		}
	}
	if !sawStop || !sawLimit {
		t.Fatalf("expected one stop-loss and one take-profit child, got %+v", open)
	}
}

func TestCancelReleasesMargin(t *testing.T) {
	eng, acct := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4010, now)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	order := &market.Order{Symbol: testSymbol, Side: market.SideBuy, Kind: market.OrderLimit, TIF: market.TIFGTC, Quantity: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(4000)}
	if _, err := eng.Submit(ctx, order); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if acct.Ledger.MarginUsed.IsZero() {
		t.Fatal("expected margin to be committed for a resting order")
	}

	if err := eng.Cancel(ctx, testSymbol, order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !acct.Ledger.MarginUsed.IsZero() {
		t.Errorf("expected margin to be released on cancel, got %s", acct.Ledger.MarginUsed)
	}
}

func TestTIFDayOrderCancelsOnDayRollover(t *testing.T) {
	eng, acct := newTestEngine(t)
	ctx := context.Background()
	submitTime := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4010, submitTime)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	order := &market.Order{Symbol: testSymbol, Side: market.SideBuy, Kind: market.OrderLimit, TIF: market.TIFDay, Quantity: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(4000)}
	ctx = testsupport.WithClock(ctx, testsupport.FixedClock{T: submitTime})
	if _, err := eng.Submit(ctx, order); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := len(eng.OpenOrders(testSymbol)); got != 1 {
		t.Fatalf("expected the day order to rest in the book, got %d", got)
	}

	// a record later the same day must not cancel it.
	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4005, submitTime.Add(2*time.Hour))); err != nil {
		t.Fatalf("same-day record: %v", err)
	}
	if got := len(eng.OpenOrders(testSymbol)); got != 1 {
		t.Fatalf("expected the day order to still be resting within the same day, got %d", got)
	}

	nextDay := submitTime.AddDate(0, 0, 1)
	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4005, nextDay)); err != nil {
		t.Fatalf("next-day record: %v", err)
	}
	if got := len(eng.OpenOrders(testSymbol)); got != 0 {
		t.Fatalf("expected the day order to be cancelled once the event-time day rolls over, got %d", got)
	}
	if !acct.Ledger.MarginUsed.IsZero() {
		t.Errorf("expected margin to be released when a day order expires, got %s", acct.Ledger.MarginUsed)
	}
}

func TestFillTimestampIsDeterministicUnderFixedClock(t *testing.T) {
	eng, _ := newTestEngine(t)
	fixed := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	ctx := testsupport.WithClock(context.Background(), testsupport.FixedClock{T: fixed})

	if _, err := eng.OnRecord(ctx, tickAt(testSymbol, 4000, fixed)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	order := &market.Order{Symbol: testSymbol, Side: market.SideBuy, Kind: market.OrderMarket, TIF: market.TIFGTC, Quantity: decimal.NewFromInt(1)}
	fills, err := eng.Submit(ctx, order)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(fills) != 1 || !fills[0].At.Equal(fixed) {
		t.Fatalf("expected the fill to be stamped with the injected clock time %s, got %+v", fixed, fills)
	}
}
