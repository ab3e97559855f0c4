package market

import (
	"context"
	"time"
)

// TimeSlice is a month-aligned bundle of records for one subscription,
// returned by a Vendor and persisted by the historical store.
type TimeSlice struct {
	Subscription Subscription
	Year         int
	Month        time.Month
	Records      []Record
}

// Vendor is the abstract capability contract for a historical/live data
// source. A concrete adapter (Alpaca, Polygon, Rithmic, Interactive Brokers,
// ...) implements this without the engine ever depending on its wire
// protocol.
type Vendor interface {
	Name() string
	// FetchMonth returns every record for sub falling in the given
	// calendar month.
	FetchMonth(ctx context.Context, sub Subscription, year int, month time.Month) (TimeSlice, error)
	// StreamPrimary returns a channel of live records for sub; closed when
	// ctx is cancelled or the feed ends.
	StreamPrimary(ctx context.Context, sub Subscription) (<-chan Record, error)
	HealthCheck(ctx context.Context) error
	// NativeResolutions reports which resolutions this vendor can serve
	// directly for symbol/dataType, without a consolidator building it from
	// something finer. The subscription handler consults this before
	// promoting a derived subscription to primary.
	NativeResolutions(ctx context.Context, symbol string, dataType BaseDataType) ([]Resolution, error)
}

// Broker is the abstract capability contract a paper or live execution
// backend must satisfy: symbol facts and (for a live backend) order
// submission. The paper matching engine in this module implements it
// entirely in-process; a live backend would additionally talk to a real
// broker API behind the same shape.
type Broker interface {
	Name() string
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	RateToAccountCurrency(ctx context.Context, from, to string) (rate float64, err error)
}
