package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ConsolidatorKind selects which consolidator variant produces a
// subscription's records when it is not a primary feed. It is orthogonal to
// Resolution/DataType because Renko and count-based bars are not
// duration-addressed the way time candles are.
type ConsolidatorKind int

const (
	ConsolidatorNone ConsolidatorKind = iota
	ConsolidatorTime
	ConsolidatorHeikinAshi
	ConsolidatorRenko
	ConsolidatorCount
	ConsolidatorWeekly
)

func (k ConsolidatorKind) String() string {
	switch k {
	case ConsolidatorTime:
		return "time"
	case ConsolidatorHeikinAshi:
		return "heikin_ashi"
	case ConsolidatorRenko:
		return "renko"
	case ConsolidatorCount:
		return "count"
	case ConsolidatorWeekly:
		return "weekly"
	default:
		return "none"
	}
}

// Subscription identifies one symbol/resolution/data-type feed a strategy
// (or a consolidator feeding one) wants delivered.
type Subscription struct {
	Symbol     string
	DataType   BaseDataType
	Resolution Resolution
	// Primary marks a subscription whose records come directly from the
	// feeder rather than from a consolidator fed by another subscription.
	Primary bool
	// Consolidator selects which consolidator variant builds this feed
	// when Primary is false. ConsolidatorNone is only valid when Primary
	// is true.
	Consolidator ConsolidatorKind
	// BrickSize is the Renko consolidator's fixed brick height; ignored by
	// every other consolidator kind.
	BrickSize decimal.Decimal
	// TickCount is the count consolidator's bar size in ticks; ignored by
	// every other consolidator kind.
	TickCount int
	// TickSize rounds a produced Candle/QuoteBar's Range/Spread fields when
	// set; zero leaves them unrounded.
	TickSize decimal.Decimal
	// FillForward, when set, makes a time-based consolidator synthesize a
	// zero-volume bar at the last close instead of leaving no open bar once
	// its window closes with no new data.
	FillForward bool
	// TradingHours and WeekStartWeekday configure the weekly consolidator's
	// session boundaries; ignored by every other consolidator kind. A zero
	// TradingHours (no Location and no Sessions set) makes NewWeekly fall back to
	// DefaultTradingHours rather than building a feed that is never open.
	TradingHours     TradingHours
	WeekStartWeekday time.Weekday
}

// Key returns a value usable as a map key uniquely identifying this feed.
func (s Subscription) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", s.Symbol, s.DataType, s.Resolution, s.Consolidator)
}

func (s Subscription) String() string { return s.Key() }
