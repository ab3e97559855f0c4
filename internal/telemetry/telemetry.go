// Package telemetry is the engine's structured logging and metrics surface:
// one JSON line per event, written the same way whether the event is a log
// message or a counter increment.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

type runInfoKey struct{}

// RunInfo carries correlation fields through a context so every log line
// emitted during a run can be tied back to it without threading fields
// through every call.
type RunInfo struct {
	RunID  string
	Symbol string
}

// WithRunInfo attaches RunInfo to ctx for LogEvent to pick up downstream.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

func runInfoFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}

// LogEvent writes one structured JSON line: timestamp, level, event name,
// any RunInfo found on ctx, and the supplied fields.
func LogEvent(ctx context.Context, level, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"event": event,
	}
	if info, ok := runInfoFromContext(ctx); ok {
		if info.RunID != "" {
			payload["run_id"] = info.RunID
		}
		if info.Symbol != "" {
			payload["symbol"] = info.Symbol
		}
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			payload[k] = err.Error()
			continue
		}
		payload[k] = v
	}

	b, err := json.Marshal(payload)
	if err != nil {
		logger.Printf(`{"level":"error","event":"telemetry_marshal_failed","err":%q}`, err.Error())
		return
	}
	logger.Print(string(b))
}

// LogPhase records an engine-loop phase transition.
func LogPhase(ctx context.Context, phase string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["phase"] = phase
	LogEvent(ctx, "info", "phase_transition", fields)
}

// RecordFill records a metric-shaped event for a matched order.
func RecordFill(ctx context.Context, symbol string, quantity, price float64) {
	LogEvent(ctx, "info", "metric", map[string]any{
		"name":     "order_fill",
		"symbol":   symbol,
		"quantity": quantity,
		"price":    price,
	})
}

// RecordRejection records a metric-shaped event for an order rejection.
func RecordRejection(ctx context.Context, symbol, reason string) {
	LogEvent(ctx, "info", "metric", map[string]any{
		"name":   "order_rejection",
		"symbol": symbol,
		"reason": reason,
	})
}

// RecordConsolidatorClose records a derived-bar close.
func RecordConsolidatorClose(ctx context.Context, symbol, kind string) {
	LogEvent(ctx, "info", "metric", map[string]any{
		"name":   "consolidator_close",
		"symbol": symbol,
		"kind":   kind,
	})
}

// RecordVendorRetry records a vendor I/O retry attempt.
func RecordVendorRetry(ctx context.Context, vendor string, attempt int) {
	LogEvent(ctx, "warn", "metric", map[string]any{
		"name":    "vendor_retry",
		"vendor":  vendor,
		"attempt": attempt,
	})
}
