package consolidate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/market"
)

// roundToTick rounds v to the nearest multiple of tickSize, or returns v
// unrounded if tickSize is zero (the subscription didn't set one).
func roundToTick(v, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return v
	}
	return v.Div(tickSize).Round(0).Mul(tickSize)
}

// windowDuration returns the fixed duration a Seconds/Minutes/Hours/Day
// resolution spans. Week is handled separately by the weekly consolidator
// because its boundary is session-aware, not a fixed duration from epoch.
func windowDuration(res market.Resolution) time.Duration {
	switch res.Kind {
	case market.ResolutionSeconds:
		return time.Duration(res.N) * time.Second
	case market.ResolutionMinutes:
		return time.Duration(res.N) * time.Minute
	case market.ResolutionHours:
		return time.Duration(res.N) * time.Hour
	case market.ResolutionDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// windowStart floors t to the start of the resolution's bucket, anchored at
// the Unix epoch so bucket boundaries are stable across runs.
func windowStart(t time.Time, res market.Resolution) time.Time {
	d := windowDuration(res)
	if d <= 0 {
		return t
	}
	u := t.UTC().UnixNano()
	n := int64(d)
	floored := (u / n) * n
	return time.Unix(0, floored).UTC()
}
