package guardrail

import (
	"context"
	"testing"
)

func okProbe(name string) Probe {
	return FuncProbe{ProbeName: name, Fn: func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusOK}
	}}
}

func failProbe(name string) Probe {
	return FuncProbe{ProbeName: name, Fn: func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusFailed, Message: "down"}
	}}
}

func TestPollHaltsAfterConsecutiveCriticalFailures(t *testing.T) {
	m := NewHealthMonitor(MonitorConfig{FailuresBeforeHalt: 3}, failProbe("vendor"))

	for i := 0; i < 2; i++ {
		m.Poll(context.Background())
		if halted, _ := m.IsHalted(); halted {
			t.Fatalf("should not halt before reaching the threshold (poll %d)", i+1)
		}
	}
	m.Poll(context.Background())
	if halted, reason := m.IsHalted(); !halted || reason == "" {
		t.Fatalf("expected a halt with a reason after 3 consecutive failures, got halted=%v reason=%q", halted, reason)
	}
}

func TestPollResetsStreakOnRecovery(t *testing.T) {
	calls := 0
	flaky := FuncProbe{ProbeName: "feed", Fn: func(ctx context.Context) CheckResult {
		calls++
		if calls == 2 {
			return CheckResult{Status: StatusOK}
		}
		return CheckResult{Status: StatusFailed}
	}}
	m := NewHealthMonitor(MonitorConfig{FailuresBeforeHalt: 2}, flaky)

	m.Poll(context.Background()) // fail, streak=1
	m.Poll(context.Background()) // ok, streak resets
	m.Poll(context.Background()) // fail, streak=1 again
	if halted, _ := m.IsHalted(); halted {
		t.Fatal("a recovered probe should reset the failure streak, not accumulate across the gap")
	}
}

func TestNonCriticalFailureDoesNotHalt(t *testing.T) {
	m := NewHealthMonitor(MonitorConfig{FailuresBeforeHalt: 1, CriticalProbes: []string{"vendor"}}, failProbe("cosmetic"))
	m.Poll(context.Background())
	if halted, _ := m.IsHalted(); halted {
		t.Fatal("a probe outside CriticalProbes should not trip a halt")
	}
}

func TestForceHaltAndReset(t *testing.T) {
	m := NewHealthMonitor(DefaultMonitorConfig(), okProbe("vendor"))
	m.ForceHalt("operator review")
	if halted, reason := m.IsHalted(); !halted || reason != "operator review" {
		t.Fatalf("expected forced halt with operator reason, got halted=%v reason=%q", halted, reason)
	}
	m.Reset()
	if halted, _ := m.IsHalted(); halted {
		t.Fatal("expected Reset to clear the halt")
	}
	// a poll right after Reset should not immediately re-halt from a stale streak.
	m.Poll(context.Background())
	if halted, _ := m.IsHalted(); halted {
		t.Fatal("Reset should also clear the failure streak")
	}
}

func TestLatestReturnsMostRecentPerProbe(t *testing.T) {
	m := NewHealthMonitor(DefaultMonitorConfig(), okProbe("vendor"), failProbe("broker"))
	m.Poll(context.Background())
	latest := m.Latest()
	if latest["vendor"].Status != StatusOK {
		t.Errorf("expected vendor status ok, got %s", latest["vendor"].Status)
	}
	if latest["broker"].Status != StatusFailed {
		t.Errorf("expected broker status failed, got %s", latest["broker"].Status)
	}
}
