package consolidate

import (
	"time"

	"github.com/eventkernel/tradeengine/internal/market"
)

// TimeCandle builds fixed-duration OHLCV candles from a tick stream,
// splitting each tick's volume into AskVolume/BidVolume by its Aggressor.
type TimeCandle struct {
	in, out market.Subscription
	cur     *market.Candle
}

func NewTimeCandle(in, out market.Subscription) *TimeCandle {
	return &TimeCandle{in: in, out: out}
}

func (c *TimeCandle) Input() market.Subscription  { return c.in }
func (c *TimeCandle) Output() market.Subscription { return c.out }

func (c *TimeCandle) Update(r market.Record) (market.Record, market.Record, bool) {
	tick, ok := r.(market.Tick)
	if !ok {
		panic("consolidate: TimeCandle.Update given a non-Tick record")
	}
	start := windowStart(tick.At, c.out.Resolution)
	end := start.Add(windowDuration(c.out.Resolution))

	var closed market.Record
	var hasClosed bool
	if c.cur != nil && c.cur.Start.Equal(start) {
		// same bucket, accumulate
	} else if c.cur != nil {
		closed, hasClosed = c.closeCurrent(start, end)
	}

	if c.cur == nil {
		c.cur = &market.Candle{
			Sym: tick.Sym, Start: start, End: end, Res: c.out.Resolution,
			Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price,
			Kind: market.CandleStick,
		}
		c.absorb(tick)
	} else {
		c.absorb(tick)
	}

	return *c.cur, closed, hasClosed
}

func (c *TimeCandle) absorb(tick market.Tick) {
	if tick.Price.GreaterThan(c.cur.High) {
		c.cur.High = tick.Price
	}
	if tick.Price.LessThan(c.cur.Low) {
		c.cur.Low = tick.Price
	}
	c.cur.Close = tick.Price
	switch tick.Aggressor {
	case market.AggressorBuy:
		c.cur.BidVolume = c.cur.BidVolume.Add(tick.Volume)
	case market.AggressorSell:
		c.cur.AskVolume = c.cur.AskVolume.Add(tick.Volume)
	}
	c.cur.Volume = c.cur.AskVolume.Add(c.cur.BidVolume)
	c.cur.Range = roundToTick(c.cur.High.Sub(c.cur.Low), c.out.TickSize)
}

// closeCurrent finalizes c.cur and, when fill-forward is enabled, opens a
// synthetic zero-volume bar at the prior close to stand in for the gap
// until a real tick or UpdateTime advances it further.
func (c *TimeCandle) closeCurrent(nextStart, nextEnd time.Time) (market.Record, bool) {
	c.cur.Closed = true
	closed := *c.cur
	if c.out.FillForward {
		c.cur = &market.Candle{
			Sym: closed.Sym, Start: nextStart, End: nextEnd, Res: c.out.Resolution,
			Open: closed.Close, High: closed.Close, Low: closed.Close, Close: closed.Close,
			Kind: closed.Kind,
		}
	} else {
		c.cur = nil
	}
	return closed, true
}

func (c *TimeCandle) UpdateTime(t time.Time) (market.Record, bool) {
	if c.cur == nil {
		return nil, false
	}
	if !t.Before(c.cur.End) {
		start := windowStart(t, c.out.Resolution)
		end := start.Add(windowDuration(c.out.Resolution))
		closed, _ := c.closeCurrent(start, end)
		return closed, true
	}
	return nil, false
}
