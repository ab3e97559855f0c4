// Package feed is the historical feeder: it loads month-aligned slices for
// every primary subscription on demand, merges them into one strictly
// time-ordered stream across symbols, and exposes a warm-up window ahead of
// a strategy's requested start time.
package feed

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/eventkernel/tradeengine/internal/enginerr"
	"github.com/eventkernel/tradeengine/internal/histstore"
	"github.com/eventkernel/tradeengine/internal/market"
	"github.com/eventkernel/tradeengine/internal/resilience"
	"github.com/eventkernel/tradeengine/internal/telemetry"
)

// Feeder loads and merges historical data for a backtest run.
type Feeder struct {
	vendor  market.Vendor
	store   *histstore.Store
	breaker *resilience.Breaker
	// MaxEmptyResponses caps how many consecutive empty vendor responses a
	// single subscription's month walk tolerates before it gives up on the
	// remaining months in range, surfacing ErrVendorUnavailable.
	MaxEmptyResponses int
}

// New builds a Feeder. store may be nil, in which case every month is
// always re-fetched from vendor.
func New(ctx context.Context, vendor market.Vendor, store *histstore.Store) *Feeder {
	return &Feeder{
		vendor:            vendor,
		store:             store,
		breaker:           resilience.NewBreaker(ctx, resilience.DefaultConfig("historical-feed:"+vendor.Name())),
		MaxEmptyResponses: 3,
	}
}

func monthsBetween(start, end time.Time) []struct {
	Year  int
	Month time.Month
} {
	var out []struct {
		Year  int
		Month time.Month
	}
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	stop := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(stop) {
		out = append(out, struct {
			Year  int
			Month time.Month
		}{cur.Year(), cur.Month()})
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

// loadSubscription returns every record for sub falling within [start,end],
// consulting the store first and falling back to the vendor (behind the
// circuit breaker) on a cache miss, persisting what it fetches.
func (f *Feeder) loadSubscription(ctx context.Context, sub market.Subscription, start, end time.Time) ([]market.Record, error) {
	var out []market.Record
	consecutiveEmpty := 0

	for _, ym := range monthsBetween(start, end) {
		var slice market.TimeSlice
		var found bool

		if f.store != nil {
			cached, _, ok, err := f.store.Get(ctx, f.vendor.Name(), sub, ym.Year, ym.Month)
			if err != nil {
				return nil, err
			}
			if ok {
				slice, found = cached, true
			}
		}

		if !found {
			result, err := f.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
				return f.vendor.FetchMonth(ctx, sub, ym.Year, ym.Month)
			})
			if err != nil {
				return nil, fmt.Errorf("feed: fetch %s %04d-%02d: %w", sub, ym.Year, ym.Month, enginerr.ErrVendorUnavailable)
			}
			slice = result.(market.TimeSlice)
			if f.store != nil {
				if err := f.store.Put(ctx, f.vendor.Name(), slice); err != nil {
					return nil, err
				}
			}
		}

		if len(slice.Records) == 0 {
			consecutiveEmpty++
			telemetry.RecordVendorRetry(ctx, f.vendor.Name(), consecutiveEmpty)
			if consecutiveEmpty >= f.MaxEmptyResponses {
				return nil, fmt.Errorf("feed: %s: %w (consecutive empty response cap reached)", sub, enginerr.ErrVendorUnavailable)
			}
			continue
		}
		consecutiveEmpty = 0

		for _, r := range slice.Records {
			if r.Time().Before(start) || r.Time().After(end) {
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// heapItem is one symbol's next-to-deliver record in the merge heap.
type heapItem struct {
	record market.Record
	stream []market.Record
	pos    int
}

type mergeHeap []*heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return h[i].record.Time().Before(h[j].record.Time())
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Run loads every subscription in subs over [warmupStart, end] and streams
// the merged, strictly time-ordered result on the returned channel. The
// channel is closed once every record has been delivered, on ctx
// cancellation, or on error; the error, if any, is delivered on the
// returned error channel before it closes.
func (f *Feeder) Run(ctx context.Context, subs []market.Subscription, warmupStart, end time.Time) (<-chan market.Record, <-chan error) {
	out := make(chan market.Record)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		h := &mergeHeap{}
		heap.Init(h)
		for _, sub := range subs {
			records, err := f.loadSubscription(ctx, sub, warmupStart, end)
			if err != nil {
				errc <- err
				return
			}
			if len(records) == 0 {
				continue
			}
			heap.Push(h, &heapItem{record: records[0], stream: records, pos: 0})
		}

		for h.Len() > 0 {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			default:
			}

			item := heap.Pop(h).(*heapItem)
			select {
			case out <- item.record:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
			item.pos++
			if item.pos < len(item.stream) {
				item.record = item.stream[item.pos]
				heap.Push(h, item)
			}
		}
	}()

	return out, errc
}
