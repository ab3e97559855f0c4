package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/market"
)

// HeikinAshi wraps a plain time candle consolidator and transforms each bar
// it produces into Heikin-Ashi OHLC values, which smooth trend direction by
// folding the previous bar's open/close into the current one.
//
//	haClose = (O+H+L+C)/4
//	haOpen  = (prevHAOpen+prevHAClose)/2   (first bar: (O+C)/2)
//	haHigh  = max(H, haOpen, haClose)
//	haLow   = min(L, haOpen, haClose)
type HeikinAshi struct {
	in, out     market.Subscription
	underlying  *TimeCandle
	prevHAOpen  decimal.Decimal
	prevHAClose decimal.Decimal
	havePrev    bool
}

func NewHeikinAshi(in, out market.Subscription) *HeikinAshi {
	return &HeikinAshi{
		in:         in,
		out:        out,
		underlying: NewTimeCandle(in, out),
	}
}

func (h *HeikinAshi) Input() market.Subscription  { return h.in }
func (h *HeikinAshi) Output() market.Subscription { return h.out }

func (h *HeikinAshi) transform(c market.Candle) market.Candle {
	four := decimal.NewFromInt(4)
	two := decimal.NewFromInt(2)
	haClose := c.Open.Add(c.High).Add(c.Low).Add(c.Close).Div(four)

	var haOpen decimal.Decimal
	if h.havePrev {
		haOpen = h.prevHAOpen.Add(h.prevHAClose).Div(two)
	} else {
		haOpen = c.Open.Add(c.Close).Div(two)
	}

	haHigh := decimal.Max(c.High, decimal.Max(haOpen, haClose))
	haLow := decimal.Min(c.Low, decimal.Min(haOpen, haClose))

	out := c
	out.Open, out.High, out.Low, out.Close = haOpen, haHigh, haLow, haClose
	out.Range = roundToTick(haHigh.Sub(haLow), h.out.TickSize)
	out.Kind = market.CandleHeikinAshi

	if c.Closed {
		h.prevHAOpen, h.prevHAClose = haOpen, haClose
		h.havePrev = true
	}
	return out
}

func (h *HeikinAshi) Update(r market.Record) (market.Record, market.Record, bool) {
	open, closed, hasClosed := h.underlying.Update(r)
	haOpen := h.transformOpenOnly(open.(market.Candle))
	if !hasClosed {
		return haOpen, nil, false
	}
	haClosed := h.transform(closed.(market.Candle))
	return haOpen, haClosed, true
}

// transformOpenOnly renders the still-open bar using the last committed
// HA open/close without advancing the running state (that only happens
// once a bar actually closes).
func (h *HeikinAshi) transformOpenOnly(c market.Candle) market.Candle {
	four := decimal.NewFromInt(4)
	two := decimal.NewFromInt(2)
	haClose := c.Open.Add(c.High).Add(c.Low).Add(c.Close).Div(four)
	var haOpen decimal.Decimal
	if h.havePrev {
		haOpen = h.prevHAOpen.Add(h.prevHAClose).Div(two)
	} else {
		haOpen = c.Open.Add(c.Close).Div(two)
	}
	haHigh := decimal.Max(c.High, decimal.Max(haOpen, haClose))
	haLow := decimal.Min(c.Low, decimal.Min(haOpen, haClose))
	out := c
	out.Open, out.High, out.Low, out.Close = haOpen, haHigh, haLow, haClose
	out.Range = roundToTick(haHigh.Sub(haLow), h.out.TickSize)
	out.Kind = market.CandleHeikinAshi
	return out
}

func (h *HeikinAshi) UpdateTime(t time.Time) (market.Record, bool) {
	closed, hasClosed := h.underlying.UpdateTime(t)
	if !hasClosed {
		return nil, false
	}
	ha := h.transform(closed.(market.Candle))
	return ha, true
}
