package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/testsupport"
)

// Decision is the outcome the trace records for one order lifecycle event.
type Decision string

const (
	DecisionFill   Decision = "fill"
	DecisionReject Decision = "reject"
	DecisionCancel Decision = "cancel"
	DecisionHalt   Decision = "halt"
)

// TraceEntry is one append-only line in a run's decision trace: enough to
// reconstruct why the engine did what it did, at what simulated time.
type TraceEntry struct {
	Sequence uint64          `json:"seq"`
	At       time.Time       `json:"at"`
	Symbol   string          `json:"symbol"`
	OrderID  string          `json:"order_id,omitempty"`
	Decision Decision        `json:"decision"`
	Price    decimal.Decimal `json:"price,omitempty"`
	Quantity decimal.Decimal `json:"quantity,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Trace is an in-memory, append-only record of every fill, rejected
// submission, and halt a run produces, in the order they occurred; order
// cancellations (expired day orders, unfilled IOC/FOK orders) are not
// recorded. It is
// the replay-determinism artifact: two runs over the same data and the same
// strategy decisions must produce byte-identical traces.
type Trace struct {
	mu      sync.Mutex
	seq     uint64
	entries []TraceEntry
}

// NewTrace creates an empty trace.
func NewTrace() *Trace { return &Trace{} }

// Append records entry, assigning it the next sequence number.
func (t *Trace) Append(entry TraceEntry) TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	entry.Sequence = t.seq
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns a copy of every entry recorded so far, in order.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Hash returns the content hash of the entire trace, for a golden-file
// determinism assertion.
func (t *Trace) Hash() (string, error) {
	return testsupport.HashJSON(t.Entries())
}

// WriteJSONL renders every entry as one JSON object per line, in order.
func (t *Trace) WriteJSONL() ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range t.Entries() {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("engine: marshal trace entry %d: %w", e.Sequence, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
