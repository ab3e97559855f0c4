// Package consolidate builds derived bars (time candles, time quote-bars,
// Heikin-Ashi, Renko, tick-count, and session-aware weekly bars) out of a
// primary record stream. Every variant below implements the same small
// capability contract so the subscription handler can drive any of them
// without a type switch.
package consolidate

import (
	"time"

	"github.com/eventkernel/tradeengine/internal/market"
)

// Consolidator turns one subscription's primary stream into another
// subscription's derived bars.
type Consolidator interface {
	// Input is the subscription this consolidator consumes records from.
	Input() market.Subscription
	// Output is the subscription this consolidator produces records for.
	Output() market.Subscription
	// Update feeds one primary record in. It returns the bar currently
	// being built (open, always non-nil once the first record has been
	// seen) and, if that record caused a prior bar to close, the closed
	// bar as well.
	Update(r market.Record) (open market.Record, closed market.Record, hasClosed bool)
	// UpdateTime advances the consolidator's notion of "now" without a new
	// record, closing a bar purely on elapsed time where the resolution
	// requires it (time candles/quote-bars, weekly). Count and Renko
	// consolidators never close on time alone and always return false.
	UpdateTime(t time.Time) (closed market.Record, hasClosed bool)
}

// New builds the Consolidator matching output.Consolidator, falling back to
// output.DataType/Resolution when Consolidator is unset (ConsolidatorTime).
func New(input, output market.Subscription) Consolidator {
	switch output.Consolidator {
	case market.ConsolidatorHeikinAshi:
		return NewHeikinAshi(input, output)
	case market.ConsolidatorRenko:
		return NewRenko(input, output)
	case market.ConsolidatorCount:
		return NewCount(input, output)
	case market.ConsolidatorWeekly:
		return NewWeekly(input, output)
	default:
		if output.DataType == market.BaseDataQuoteBar {
			return NewTimeQuoteBar(input, output)
		}
		return NewTimeCandle(input, output)
	}
}
