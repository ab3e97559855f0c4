package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/market"
)

// Renko chains fixed-height price bricks from a tick stream. Unlike every
// other consolidator, a single tick can close zero, one, or many bricks at
// once (a large price jump crosses several brick boundaries in one step),
// and bricks never close on elapsed time alone.
type Renko struct {
	in, out   market.Subscription
	brickSize   decimal.Decimal
	anchor      decimal.Decimal // close price of the last committed brick
	haveAnchor  bool
	cur         *market.Candle // the brick currently forming
	lastClosed  []market.Record
}

func NewRenko(in, out market.Subscription) *Renko {
	return &Renko{in: in, out: out, brickSize: out.BrickSize}
}

func (r *Renko) Input() market.Subscription  { return r.in }
func (r *Renko) Output() market.Subscription { return r.out }

// Update may close several bricks for one tick. The Consolidator interface
// only has room for one closed record, so Update returns the last brick
// closed by this tick and stashes the full ordered batch (including that
// last one) for LastClosedBricks; callers that must not lose an
// intermediate brick on a multi-brick tick should always call
// LastClosedBricks immediately after Update rather than relying solely on
// the boolean return.
func (r *Renko) Update(rec market.Record) (market.Record, market.Record, bool) {
	tick, ok := rec.(market.Tick)
	if !ok {
		panic("consolidate: Renko.Update given a non-Tick record")
	}
	r.lastClosed = nil
	if !r.haveAnchor {
		r.anchor = tick.Price
		r.haveAnchor = true
		r.cur = &market.Candle{
			Sym: tick.Sym, Start: tick.At, End: tick.At, Res: r.out.Resolution,
			Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price,
			Kind: market.CandleRenko,
		}
		return *r.cur, nil, false
	}

	bricks := r.absorb(tick)
	r.lastClosed = bricks
	if len(bricks) == 0 {
		return *r.cur, nil, false
	}
	last := bricks[len(bricks)-1]
	return *r.cur, last, true
}

// LastClosedBricks returns every brick closed by the most recent Update
// call, oldest first.
func (r *Renko) LastClosedBricks() []market.Record { return r.lastClosed }

func (r *Renko) absorb(tick market.Tick) []market.Record {
	var closed []market.Record
	for {
		up := r.anchor.Add(r.brickSize)
		down := r.anchor.Sub(r.brickSize)
		switch {
		case tick.Price.GreaterThanOrEqual(up):
			brick := market.Candle{
				Sym: tick.Sym, Start: tick.At, End: tick.At, Res: r.out.Resolution,
				Open: r.anchor, Close: up, High: up, Low: r.anchor, Closed: true,
				Range: roundToTick(up.Sub(r.anchor), r.out.TickSize), Kind: market.CandleRenko,
			}
			closed = append(closed, brick)
			r.anchor = up
		case tick.Price.LessThanOrEqual(down):
			brick := market.Candle{
				Sym: tick.Sym, Start: tick.At, End: tick.At, Res: r.out.Resolution,
				Open: r.anchor, Close: down, High: r.anchor, Low: down, Closed: true,
				Range: roundToTick(r.anchor.Sub(down), r.out.TickSize), Kind: market.CandleRenko,
			}
			closed = append(closed, brick)
			r.anchor = down
		default:
			high := decimal.Max(r.anchor, tick.Price)
			low := decimal.Min(r.anchor, tick.Price)
			r.cur = &market.Candle{
				Sym: tick.Sym, Start: tick.At, End: tick.At, Res: r.out.Resolution,
				Open: r.anchor, High: high, Low: low, Close: tick.Price,
				Range: roundToTick(high.Sub(low), r.out.TickSize), Kind: market.CandleRenko,
			}
			return closed
		}
	}
}

// UpdateTime never closes a Renko brick; bricks close purely on price.
func (r *Renko) UpdateTime(t time.Time) (market.Record, bool) { return nil, false }
