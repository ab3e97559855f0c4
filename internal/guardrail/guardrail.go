// Package guardrail is the engine's health-probe and shutdown layer: a
// HealthMonitor is polled once per engine slice, escalating a halt after a
// run of consecutive critical failures, and its ForceHalt and Reset methods
// let an operator force a halt or clear one after review.
package guardrail

import (
	"context"
	"sync"
	"time"

	"github.com/eventkernel/tradeengine/internal/telemetry"
)

// CheckStatus is the result of a single probe.
type CheckStatus string

const (
	StatusOK       CheckStatus = "ok"
	StatusDegraded CheckStatus = "degraded"
	StatusFailed   CheckStatus = "failed"
)

// CheckResult is one probe's outcome.
type CheckResult struct {
	Name      string
	Status    CheckStatus
	Message   string
	CheckedAt time.Time
}

// Probe is anything the monitor can poll for health.
type Probe interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// FuncProbe adapts a plain function into a Probe.
type FuncProbe struct {
	ProbeName string
	Fn        func(ctx context.Context) CheckResult
}

func (f FuncProbe) Name() string { return f.ProbeName }
func (f FuncProbe) Check(ctx context.Context) CheckResult {
	r := f.Fn(ctx)
	if r.Name == "" {
		r.Name = f.ProbeName
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	return r
}

// MonitorConfig controls escalation to a halt.
type MonitorConfig struct {
	// FailuresBeforeHalt is how many consecutive polls with at least one
	// critical probe failing trip a halt.
	FailuresBeforeHalt int
	// CriticalProbes lists probe names that escalate to a halt; an empty
	// list treats every probe as critical.
	CriticalProbes []string
}

// DefaultMonitorConfig returns the defaults used when a run doesn't
// configure its own.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{FailuresBeforeHalt: 3}
}

// HealthMonitor polls registered probes once per Poll call.
type HealthMonitor struct {
	cfg         MonitorConfig
	probes      []Probe
	criticalSet map[string]bool

	mu         sync.Mutex
	latest     map[string]CheckResult
	failStreak int
	halted     bool
	haltReason string
}

// NewHealthMonitor builds a monitor over the given probes.
func NewHealthMonitor(cfg MonitorConfig, probes ...Probe) *HealthMonitor {
	cs := make(map[string]bool, len(cfg.CriticalProbes))
	for _, n := range cfg.CriticalProbes {
		cs[n] = true
	}
	return &HealthMonitor{cfg: cfg, probes: probes, criticalSet: cs, latest: make(map[string]CheckResult)}
}

// Poll runs every probe once, escalating to a halt once FailuresBeforeHalt
// consecutive polls see a critical failure. It returns the results of this
// poll.
func (m *HealthMonitor) Poll(ctx context.Context) []CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]CheckResult, 0, len(m.probes))
	criticalFailed := false
	for _, p := range m.probes {
		r := p.Check(ctx)
		m.latest[r.Name] = r
		results = append(results, r)
		if r.Status == StatusFailed {
			isCritical := len(m.criticalSet) == 0 || m.criticalSet[r.Name]
			telemetry.LogEvent(ctx, "warn", "guardrail_probe_failed", map[string]any{
				"probe": r.Name, "message": r.Message, "critical": isCritical,
			})
			if isCritical {
				criticalFailed = true
			}
		}
	}

	if criticalFailed {
		m.failStreak++
		if !m.halted && m.failStreak >= m.cfg.FailuresBeforeHalt {
			m.halted = true
			m.haltReason = "health monitor: consecutive critical probe failures"
			telemetry.LogEvent(ctx, "error", "guardrail_halt", map[string]any{"reason": m.haltReason})
		}
	} else {
		m.failStreak = 0
	}
	return results
}

// IsHalted reports whether a halt has been triggered (by probes or by an
// override).
func (m *HealthMonitor) IsHalted() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted, m.haltReason
}

// ForceHalt trips the halt immediately, as an operator override.
func (m *HealthMonitor) ForceHalt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = true
	m.haltReason = reason
}

// Reset clears a halt after operator review.
func (m *HealthMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
	m.haltReason = ""
	m.failStreak = 0
}

// Latest returns the most recent result for each probe.
func (m *HealthMonitor) Latest() map[string]CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CheckResult, len(m.latest))
	for k, v := range m.latest {
		out[k] = v
	}
	return out
}
