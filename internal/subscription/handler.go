// Package subscription tracks which feeds a strategy has asked for, wires a
// consolidator between a primary feed and every derived feed built from it,
// and turns each incoming primary record into the ordered set of closed
// records (the primary tick/quote itself, plus any consolidator bars it
// closed) that the engine loop delivers onward this step.
package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eventkernel/tradeengine/internal/consolidate"
	"github.com/eventkernel/tradeengine/internal/enginerr"
	"github.com/eventkernel/tradeengine/internal/market"
)

// Event is emitted whenever a subscription is added or removed, mirroring
// the engine's external event stream.
type Event struct {
	Subscription market.Subscription
	Added        bool
	At           time.Time
}

type derivedEntry struct {
	sub          market.Subscription
	consolidator consolidate.Consolidator
}

// Handler is the per-strategy-run subscription book. It tracks one primary
// subscription per symbol/family (trade side and quote side are tracked
// independently, since a symbol can have both a Candle-shaped primary and a
// QuoteBar-shaped primary active at once) and the set of consolidators
// hanging off each.
type Handler struct {
	mu sync.RWMutex
	// vendor is consulted when a finer derived subscription might be
	// promotable to primary directly from the feed, instead of being built
	// by a consolidator.
	vendor market.Vendor
	// primary tracks the active primary subscription for each family key
	// (see familyKey).
	primary map[string]market.Subscription
	// derived maps a family key to every consolidator consuming that
	// family's primary.
	derived map[string][]*derivedEntry
	events  []Event
}

// New creates an empty subscription handler that queries vendor for native
// resolution support when deciding whether a finer subscription can replace
// the current primary outright.
func New(vendor market.Vendor) *Handler {
	return &Handler{
		vendor:  vendor,
		primary: make(map[string]market.Subscription),
		derived: make(map[string][]*derivedEntry),
	}
}

// familyKey groups subscriptions that share a feed lineage: every Candle or
// raw Tick subscription for a symbol is fed, directly or indirectly, from a
// single trade-side primary; every QuoteBar or raw Quote subscription is fed
// from a single quote-side primary. The two families are independent so a
// symbol can carry both at once.
func familyKey(symbol string, dataType market.BaseDataType) string {
	if dataType == market.BaseDataQuote || dataType == market.BaseDataQuoteBar {
		return symbol + "|quote"
	}
	return symbol + "|tick"
}

func rawInputType(dataType market.BaseDataType) market.BaseDataType {
	if dataType == market.BaseDataQuote || dataType == market.BaseDataQuoteBar {
		return market.BaseDataQuote
	}
	return market.BaseDataTick
}

// Add registers sub, following the same dispatch a request to subscribe
// follows in the original engine this one is descended from:
//
//  1. a request identical to an already-active primary or derived
//     subscription is a no-op.
//  2. a tick-count subscription (Ticks(n), n>1) always forces the family's
//     primary to raw Ticks(1), preserving whatever was primary before as a
//     derived consolidator if it wasn't already a raw feed.
//  3. otherwise, if sub's resolution is no finer than the current primary's,
//     it is attached as a consolidator fed by the current primary.
//  4. if sub's resolution is strictly finer than the current primary's, the
//     vendor is asked whether it can serve that resolution natively; if so,
//     sub is promoted to primary and the old primary is preserved as a
//     consolidator fed by the new one, otherwise sub falls back to being
//     attached on top of the current (coarser) primary.
//  5. if the family has no primary yet, a sub marked Primary becomes the
//     primary directly; any other sub is rejected with ErrBadSubscription.
func (h *Handler) Add(ctx context.Context, sub market.Subscription, now time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	family := familyKey(sub.Symbol, sub.DataType)

	if h.isSubscribed(family, sub) {
		return nil
	}

	if sub.Resolution.Kind == market.ResolutionTicks && sub.Resolution.N > 1 {
		if err := h.ensureTickPrimary(family, sub, now); err != nil {
			return err
		}
	}

	cur, havePrimary := h.primary[family]
	switch {
	case sub.Primary && !havePrimary:
		h.primary[family] = sub
		h.events = append(h.events, Event{Subscription: sub, Added: true, At: now})
		return nil

	case !havePrimary:
		return fmt.Errorf("subscription: add %s: %w (no matching primary feed subscribed)", sub, enginerr.ErrBadSubscription)

	case !sub.Resolution.Less(cur.Resolution):
		// sub is the same granularity or coarser than the current primary:
		// build it as a consolidator fed by the primary.
		return h.attachDerived(family, cur, sub, now)

	default:
		// sub is strictly finer than the current primary. Promote it only
		// if the vendor can actually serve that resolution natively;
		// otherwise there is nothing finer to build it from, so fall back
		// to attaching it on top of the coarser primary we already have.
		native, err := h.vendorOffersNatively(ctx, sub)
		if err != nil {
			return fmt.Errorf("subscription: add %s: %w", sub, err)
		}
		if !native {
			return h.attachDerived(family, cur, sub, now)
		}
		return h.promotePrimary(family, cur, sub, now)
	}
}

// isSubscribed reports whether sub (or an equivalent request) is already
// active, either as the family's primary or as one of its derived feeds.
func (h *Handler) isSubscribed(family string, sub market.Subscription) bool {
	if cur, ok := h.primary[family]; ok && cur.Key() == sub.Key() {
		return true
	}
	for _, e := range h.derived[family] {
		if e.sub.Key() == sub.Key() {
			return true
		}
	}
	return false
}

// ensureTickPrimary guarantees the family's primary is raw Ticks(1),
// preserving whatever was primary before (if anything, and if it isn't
// already a raw Tick/Quote feed) as a derived consolidator fed by the new
// tick primary.
func (h *Handler) ensureTickPrimary(family string, sub market.Subscription, now time.Time) error {
	tickPrimary := market.Subscription{
		Symbol: sub.Symbol, DataType: rawInputType(sub.DataType),
		Resolution: market.Ticks(1), Primary: true,
	}
	cur, ok := h.primary[family]
	if ok && cur.Resolution.Equal(market.Ticks(1)) {
		return nil
	}

	h.primary[family] = tickPrimary
	h.events = append(h.events, Event{Subscription: tickPrimary, Added: true, At: now})

	if !ok || cur.DataType == market.BaseDataTick || cur.DataType == market.BaseDataQuote {
		return nil
	}
	return h.attachDerived(family, tickPrimary, cur, now)
}

// promotePrimary replaces the family's current primary with sub, preserving
// the old primary as a consolidator fed by the new, finer one.
func (h *Handler) promotePrimary(family string, oldPrimary, sub market.Subscription, now time.Time) error {
	newPrimary := sub
	newPrimary.Primary = true
	h.primary[family] = newPrimary
	h.events = append(h.events, Event{Subscription: newPrimary, Added: true, At: now})

	if oldPrimary.DataType == market.BaseDataTick || oldPrimary.DataType == market.BaseDataQuote {
		return nil
	}
	return h.attachDerived(family, newPrimary, oldPrimary, now)
}

// attachDerived wires a consolidator that builds out from in. Every
// consolidator's Update type-switches on a raw Tick or Quote record, so in
// must be a literal Tick/Quote feed; anything else would panic the first
// time a record reached it.
func (h *Handler) attachDerived(family string, in, out market.Subscription, now time.Time) error {
	if in.DataType != market.BaseDataTick && in.DataType != market.BaseDataQuote {
		return fmt.Errorf("subscription: add %s: %w (no raw feed to build it from)", out, enginerr.ErrBadSubscription)
	}
	h.derived[family] = append(h.derived[family], &derivedEntry{
		sub:          out,
		consolidator: consolidate.New(in, out),
	})
	h.events = append(h.events, Event{Subscription: out, Added: true, At: now})
	return nil
}

// vendorOffersNatively reports whether h.vendor can serve sub's
// symbol/resolution/data type directly, without a consolidator.
func (h *Handler) vendorOffersNatively(ctx context.Context, sub market.Subscription) (bool, error) {
	if h.vendor == nil {
		return false, nil
	}
	native, err := h.vendor.NativeResolutions(ctx, sub.Symbol, sub.DataType)
	if err != nil {
		return false, fmt.Errorf("%w: %v", enginerr.ErrVendorUnavailable, err)
	}
	for _, r := range native {
		if r.Equal(sub.Resolution) {
			return true, nil
		}
	}
	return false, nil
}

// Remove drops sub. Removing a primary subscription that still has derived
// consolidators hanging off it leaves the primary in place (unchanged) so
// those consolidators keep working; it is only fully forgotten once no
// derived subscription depends on it any more.
func (h *Handler) Remove(sub market.Subscription, now time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	family := familyKey(sub.Symbol, sub.DataType)

	if cur, ok := h.primary[family]; ok && cur.Key() == sub.Key() {
		if len(h.derived[family]) > 0 {
			h.events = append(h.events, Event{Subscription: sub, Added: false, At: now})
			return nil
		}
		delete(h.primary, family)
		h.events = append(h.events, Event{Subscription: sub, Added: false, At: now})
		return nil
	}

	entries := h.derived[family]
	for i, e := range entries {
		if e.sub.Key() == sub.Key() {
			h.derived[family] = append(entries[:i], entries[i+1:]...)
			h.events = append(h.events, Event{Subscription: sub, Added: false, At: now})
			return nil
		}
	}
	return fmt.Errorf("subscription: remove %s: %w", sub, enginerr.ErrBadSubscription)
}

// DrainEvents returns and clears every add/remove event recorded since the
// last call.
func (h *Handler) DrainEvents() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.events
	h.events = nil
	return out
}

// Dispatch feeds one primary record through every consolidator subscribed
// to its feed and returns, in order: the primary record itself, then every
// bar any consolidator closed as a result (Renko may close several for one
// tick; each is included).
func (h *Handler) Dispatch(r market.Record) []market.Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []market.Record{r}
	family := familyKey(r.Symbol(), r.DataType())
	for _, e := range h.derived[family] {
		_, closed, hasClosed := e.consolidator.Update(r)
		if !hasClosed {
			continue
		}
		if renko, ok := e.consolidator.(*consolidate.Renko); ok {
			for _, brick := range renko.LastClosedBricks() {
				out = append(out, brick)
			}
			continue
		}
		out = append(out, closed)
	}
	return out
}

// AdvanceTime closes any consolidator bar whose window has elapsed as of t,
// without a new primary record arriving (used by the engine loop between
// ticks so e.g. a quiet minute still closes its candle on schedule).
func (h *Handler) AdvanceTime(t time.Time) []market.Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []market.Record
	for _, entries := range h.derived {
		for _, e := range entries {
			if closed, ok := e.consolidator.UpdateTime(t); ok {
				out = append(out, closed)
			}
		}
	}
	return out
}

// Primaries returns every currently active primary subscription.
func (h *Handler) Primaries() []market.Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]market.Subscription, 0, len(h.primary))
	for _, s := range h.primary {
		out = append(out, s)
	}
	return out
}
