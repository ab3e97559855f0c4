package consolidate

import (
	"time"

	"github.com/eventkernel/tradeengine/internal/market"
)

// Weekly builds session-aware weekly candles from a tick stream: each bar
// spans from the week's first session open to the close of its last
// session, and a tick arriving while the market is closed (per the
// output subscription's TradingHours) is silently dropped rather than
// opening or extending a bar.
type Weekly struct {
	in, out market.Subscription
	hours   market.TradingHours
	start   time.Weekday
	cur     *market.Candle
}

func NewWeekly(in, out market.Subscription) *Weekly {
	hours := out.TradingHours
	if hours == (market.TradingHours{}) {
		hours = market.DefaultTradingHours()
	}
	return &Weekly{in: in, out: out, hours: hours, start: out.WeekStartWeekday}
}

func (w *Weekly) Input() market.Subscription  { return w.in }
func (w *Weekly) Output() market.Subscription { return w.out }

func (w *Weekly) Update(r market.Record) (market.Record, market.Record, bool) {
	tick, ok := r.(market.Tick)
	if !ok {
		panic("consolidate: Weekly.Update given a non-Tick record")
	}
	if !w.hours.IsOpen(tick.At) {
		if w.cur == nil {
			return market.Candle{}, nil, false
		}
		return *w.cur, nil, false
	}

	start := w.hours.WeekOpen(tick.At, w.start)
	end := w.hours.WeekClose(start, w.start)

	var closed market.Record
	var hasClosed bool
	if w.cur != nil && w.cur.Start.Equal(start) {
		// same week
	} else if w.cur != nil {
		w.cur.Closed = true
		closed = *w.cur
		hasClosed = true
		w.cur = nil
	}

	if w.cur == nil {
		w.cur = &market.Candle{
			Sym: tick.Sym, Start: start, End: end, Res: market.Week(),
			Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price,
			Kind: market.CandleStick,
		}
	}
	if tick.Price.GreaterThan(w.cur.High) {
		w.cur.High = tick.Price
	}
	if tick.Price.LessThan(w.cur.Low) {
		w.cur.Low = tick.Price
	}
	w.cur.Close = tick.Price
	switch tick.Aggressor {
	case market.AggressorBuy:
		w.cur.BidVolume = w.cur.BidVolume.Add(tick.Volume)
	case market.AggressorSell:
		w.cur.AskVolume = w.cur.AskVolume.Add(tick.Volume)
	}
	w.cur.Volume = w.cur.AskVolume.Add(w.cur.BidVolume)
	w.cur.Range = roundToTick(w.cur.High.Sub(w.cur.Low), w.out.TickSize)

	return *w.cur, closed, hasClosed
}

func (w *Weekly) UpdateTime(t time.Time) (market.Record, bool) {
	if w.cur == nil {
		return nil, false
	}
	if !t.Before(w.cur.End) {
		w.cur.Closed = true
		closed := *w.cur
		w.cur = nil
		return closed, true
	}
	return nil, false
}
