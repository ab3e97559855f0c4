package consolidate

import (
	"time"

	"github.com/eventkernel/tradeengine/internal/market"
)

// TimeQuoteBar builds fixed-duration bid/ask OHLC bars from a quote stream,
// accumulating each quote's standing bid/ask size into BidVolume/AskVolume
// and tracking Range (AskHigh-BidLow) and Spread (AskClose-BidClose).
type TimeQuoteBar struct {
	in, out market.Subscription
	cur     *market.QuoteBar
}

func NewTimeQuoteBar(in, out market.Subscription) *TimeQuoteBar {
	return &TimeQuoteBar{in: in, out: out}
}

func (c *TimeQuoteBar) Input() market.Subscription  { return c.in }
func (c *TimeQuoteBar) Output() market.Subscription { return c.out }

func (c *TimeQuoteBar) Update(r market.Record) (market.Record, market.Record, bool) {
	q, ok := r.(market.Quote)
	if !ok {
		panic("consolidate: TimeQuoteBar.Update given a non-Quote record")
	}
	start := windowStart(q.At, c.out.Resolution)
	end := start.Add(windowDuration(c.out.Resolution))

	var closed market.Record
	var hasClosed bool
	if c.cur != nil && c.cur.Start.Equal(start) {
		// same bucket
	} else if c.cur != nil {
		closed, hasClosed = c.closeCurrent(start, end)
	}

	if c.cur == nil {
		c.cur = &market.QuoteBar{
			Sym: q.Sym, Start: start, End: end, Res: c.out.Resolution,
			Bid:  market.OHLC{Open: q.Bid, High: q.Bid, Low: q.Bid, Close: q.Bid},
			Ask:  market.OHLC{Open: q.Ask, High: q.Ask, Low: q.Ask, Close: q.Ask},
			Kind: market.CandleStick,
		}
	}
	c.absorb(q)

	return *c.cur, closed, hasClosed
}

func (c *TimeQuoteBar) absorb(q market.Quote) {
	if q.Bid.GreaterThan(c.cur.Bid.High) {
		c.cur.Bid.High = q.Bid
	}
	if q.Bid.LessThan(c.cur.Bid.Low) {
		c.cur.Bid.Low = q.Bid
	}
	c.cur.Bid.Close = q.Bid

	if q.Ask.GreaterThan(c.cur.Ask.High) {
		c.cur.Ask.High = q.Ask
	}
	if q.Ask.LessThan(c.cur.Ask.Low) {
		c.cur.Ask.Low = q.Ask
	}
	c.cur.Ask.Close = q.Ask

	c.cur.BidVolume = c.cur.BidVolume.Add(q.BidSize)
	c.cur.AskVolume = c.cur.AskVolume.Add(q.AskSize)
	c.cur.Range = roundToTick(c.cur.Ask.High.Sub(c.cur.Bid.Low), c.out.TickSize)
	c.cur.Spread = roundToTick(c.cur.Ask.Close.Sub(c.cur.Bid.Close), c.out.TickSize)
}

// closeCurrent finalizes c.cur and, when fill-forward is enabled, opens a
// synthetic zero-volume bar at the prior bid/ask close, preserving spread,
// to stand in for the gap until a real quote or UpdateTime advances it.
func (c *TimeQuoteBar) closeCurrent(nextStart, nextEnd time.Time) (market.Record, bool) {
	c.cur.Closed = true
	closed := *c.cur
	if c.out.FillForward {
		c.cur = &market.QuoteBar{
			Sym: closed.Sym, Start: nextStart, End: nextEnd, Res: c.out.Resolution,
			Bid:    market.OHLC{Open: closed.Bid.Close, High: closed.Bid.Close, Low: closed.Bid.Close, Close: closed.Bid.Close},
			Ask:    market.OHLC{Open: closed.Ask.Close, High: closed.Ask.Close, Low: closed.Ask.Close, Close: closed.Ask.Close},
			Range:  roundToTick(closed.Ask.Close.Sub(closed.Bid.Close), c.out.TickSize),
			Spread: closed.Spread,
			Kind:   closed.Kind,
		}
	} else {
		c.cur = nil
	}
	return closed, true
}

func (c *TimeQuoteBar) UpdateTime(t time.Time) (market.Record, bool) {
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
