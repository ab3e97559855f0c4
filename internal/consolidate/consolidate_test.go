package consolidate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/market"
)

func tick(price float64, at time.Time) market.Tick {
	return market.Tick{Sym: "ES", At: at, Price: decimal.NewFromFloat(price), Volume: decimal.NewFromInt(1)}
}

func subs(res market.Resolution) (market.Subscription, market.Subscription) {
	in := market.Subscription{Symbol: "ES", DataType: market.BaseDataTick, Resolution: market.Instant(), Primary: true}
	out := market.Subscription{Symbol: "ES", DataType: market.BaseDataCandle, Resolution: res}
	return in, out
}

func TestTimeCandleClosesOnBucketBoundary(t *testing.T) {
	in, out := subs(market.Minutes(1))
	c := NewTimeCandle(in, out)

	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	_, _, closed := c.Update(tick(4000, base))
	if closed {
		t.Fatal("first tick in a bucket should not close anything")
	}
	_, closedRec, hasClosed := c.Update(tick(4005, base.Add(70*time.Second)))
	if !hasClosed {
		t.Fatal("a tick in the next minute bucket should close the previous bar")
	}
	bar := closedRec.(market.Candle)
	if !bar.Open.Equal(decimal.NewFromInt(4000)) || !bar.Close.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("expected the closed bar to reflect only the first tick, got open=%s close=%s", bar.Open, bar.Close)
	}
	if !bar.Closed {
		t.Error("expected the closed bar's Closed flag to be set")
	}
}

func TestTimeCandleClosesOnUpdateTime(t *testing.T) {
	in, out := subs(market.Minutes(1))
	c := NewTimeCandle(in, out)
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	c.Update(tick(4000, base))

	if _, ok := c.UpdateTime(base.Add(30 * time.Second)); ok {
		t.Fatal("should not close before the bucket end")
	}
	closed, ok := c.UpdateTime(base.Add(61 * time.Second))
	if !ok {
		t.Fatal("expected the bar to close once time passes the bucket end")
	}
	if !closed.(market.Candle).Closed {
		t.Error("expected Closed set on the time-forced close")
	}
}

func TestHeikinAshiFirstBarAveragesOpenClose(t *testing.T) {
	in, out := subs(market.Minutes(1))
	out.Consolidator = market.ConsolidatorHeikinAshi
	h := NewHeikinAshi(in, out)

	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	h.Update(tick(4000, base))
	h.Update(tick(4010, base.Add(10*time.Second)))
	_, closedRec, hasClosed := h.Update(tick(4020, base.Add(70*time.Second)))
	if !hasClosed {
		t.Fatal("expected the bar to close on bucket rollover")
	}
	bar := closedRec.(market.Candle)
	wantClose := decimal.NewFromInt(4000).Add(decimal.NewFromInt(4010)).Add(decimal.NewFromInt(4000)).Add(decimal.NewFromInt(4010)).Div(decimal.NewFromInt(4))
	if !bar.Close.Equal(wantClose) {
		t.Errorf("expected HA close %s, got %s", wantClose, bar.Close)
	}
	wantOpen := decimal.NewFromInt(4000).Add(decimal.NewFromInt(4010)).Div(decimal.NewFromInt(2))
	if !bar.Open.Equal(wantOpen) {
		t.Errorf("expected HA open (O+C)/2 on the first bar, got %s want %s", bar.Open, wantOpen)
	}
}

func TestRenkoSingleTickClosesMultipleBricks(t *testing.T) {
	in := market.Subscription{Symbol: "ES", DataType: market.BaseDataTick, Resolution: market.Instant(), Primary: true}
	out := market.Subscription{Symbol: "ES", DataType: market.BaseDataCandle, Consolidator: market.ConsolidatorRenko, BrickSize: decimal.NewFromInt(10)}
	r := NewRenko(in, out)

	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	r.Update(tick(4000, base)) // sets anchor, no brick yet

	_, _, hasClosed := r.Update(tick(4035, base.Add(time.Second)))
	if !hasClosed {
		t.Fatal("expected a jump of 35 points against a brick size of 10 to close bricks")
	}
	bricks := r.LastClosedBricks()
	if len(bricks) != 3 {
		t.Fatalf("expected 3 bricks closed by one tick (4000->4010->4020->4030), got %d", len(bricks))
	}
	for i, b := range bricks {
		c := b.(market.Candle)
		if !c.Closed {
			t.Errorf("brick %d: expected Closed set", i)
		}
	}
}

func TestRenkoNeverClosesOnTime(t *testing.T) {
	in := market.Subscription{Symbol: "ES", DataType: market.BaseDataTick, Resolution: market.Instant(), Primary: true}
	out := market.Subscription{Symbol: "ES", DataType: market.BaseDataCandle, Consolidator: market.ConsolidatorRenko, BrickSize: decimal.NewFromInt(10)}
	r := NewRenko(in, out)
	if _, ok := r.UpdateTime(time.Now()); ok {
		t.Fatal("Renko must never close a brick on elapsed time alone")
	}
}

func TestCountClosesOnTickCount(t *testing.T) {
	in := market.Subscription{Symbol: "ES", DataType: market.BaseDataTick, Resolution: market.Instant(), Primary: true}
	out := market.Subscription{Symbol: "ES", DataType: market.BaseDataCandle, Consolidator: market.ConsolidatorCount, TickCount: 3}
	c := NewCount(in, out)

	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	for i, price := range []float64{4000, 4010} {
		_, _, closed := c.Update(tick(price, base.Add(time.Duration(i)*time.Second)))
		if closed {
			t.Fatalf("bar should not close before %d ticks", 3)
		}
	}
	_, closedRec, hasClosed := c.Update(tick(4005, base.Add(2*time.Second)))
	if !hasClosed {
		t.Fatal("expected the bar to close on the 3rd tick")
	}
	bar := closedRec.(market.Candle)
	if !bar.High.Equal(decimal.NewFromInt(4010)) {
		t.Errorf("expected high 4010, got %s", bar.High)
	}
}

func TestWeeklyClosesOnSessionBoundary(t *testing.T) {
	in := market.Subscription{Symbol: "ES", DataType: market.BaseDataTick, Resolution: market.Instant(), Primary: true}
	out := market.Subscription{Symbol: "ES", DataType: market.BaseDataCandle, Consolidator: market.ConsolidatorWeekly}
	w := NewWeekly(in, out)

	mondayThisWeek := time.Date(2024, 1, 8, 14, 0, 0, 0, time.UTC) // Monday
	mondayNextWeek := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

	w.Update(tick(4000, mondayThisWeek))
	_, closedRec, hasClosed := w.Update(tick(4050, mondayNextWeek))
	if !hasClosed {
		t.Fatal("expected the bar to close once the next trading week's tick arrives")
	}
	bar := closedRec.(market.Candle)
	if !bar.Open.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("expected the closed week's open to be the first tick's price, got %s", bar.Open)
	}
}

func TestWeeklyNoOpWhenMarketClosed(t *testing.T) {
	in := market.Subscription{Symbol: "ES", DataType: market.BaseDataTick, Resolution: market.Instant(), Primary: true}
	out := market.Subscription{Symbol: "ES", DataType: market.BaseDataCandle, Consolidator: market.ConsolidatorWeekly}
	w := NewWeekly(in, out)

	mondayThisWeek := time.Date(2024, 1, 8, 14, 0, 0, 0, time.UTC)
	w.Update(tick(4000, mondayThisWeek))

	saturday := time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC) // closed under DefaultTradingHours
	open, closedRec, hasClosed := w.Update(tick(5000, saturday))
	if hasClosed {
		t.Fatalf("a tick while the market is closed must not close the open bar, got %v", closedRec)
	}
	bar := open.(market.Candle)
	if !bar.High.Equal(decimal.NewFromInt(4000)) || !bar.Close.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("a tick while the market is closed must not be absorbed into the bar, got high=%s close=%s", bar.High, bar.Close)
	}
}
