package consolidate

import (
	"time"

	"github.com/eventkernel/tradeengine/internal/market"
)

// Count builds bars of a fixed number of ticks, closing purely on tick
// count rather than elapsed time or price movement.
type Count struct {
	in, out market.Subscription
	size    int
	seen    int
	cur     *market.Candle
}

func NewCount(in, out market.Subscription) *Count {
	size := out.TickCount
	if size <= 0 {
		size = 1
	}
	return &Count{in: in, out: out, size: size}
}

func (c *Count) Input() market.Subscription  { return c.in }
func (c *Count) Output() market.Subscription { return c.out }

func (c *Count) Update(r market.Record) (market.Record, market.Record, bool) {
	tick, ok := r.(market.Tick)
	if !ok {
		panic("consolidate: Count.Update given a non-Tick record")
	}

	if c.cur == nil {
		c.cur = &market.Candle{
			Sym: tick.Sym, Start: tick.At, End: tick.At, Res: c.out.Resolution,
			Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price,
			Kind: market.CandleStick,
		}
		c.seen = 1
	} else {
		if tick.Price.GreaterThan(c.cur.High) {
			c.cur.High = tick.Price
		}
		if tick.Price.LessThan(c.cur.Low) {
			c.cur.Low = tick.Price
		}
		c.cur.Close = tick.Price
		c.cur.End = tick.At
		c.seen++
	}
	switch tick.Aggressor {
	case market.AggressorBuy:
		c.cur.BidVolume = c.cur.BidVolume.Add(tick.Volume)
	case market.AggressorSell:
		c.cur.AskVolume = c.cur.AskVolume.Add(tick.Volume)
	}
	c.cur.Volume = c.cur.AskVolume.Add(c.cur.BidVolume)
	c.cur.Range = roundToTick(c.cur.High.Sub(c.cur.Low), c.out.TickSize)

	if c.seen >= c.size {
		c.cur.Closed = true
		closed := *c.cur
		c.cur = nil
		c.seen = 0
		return closed, closed, true
	}
	return *c.cur, nil, false
}

// UpdateTime never closes a count bar; it closes purely on tick count.
func (c *Count) UpdateTime(t time.Time) (market.Record, bool) { return nil, false }
