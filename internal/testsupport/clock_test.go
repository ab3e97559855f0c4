package testsupport

import (
	"context"
	"testing"
	"time"
)

func TestSystemClockReturnsWallTime(t *testing.T) {
	clock := SystemClock{}
	before := time.Now()
	got := clock.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("SystemClock.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestFixedClockAlwaysReturnsT(t *testing.T) {
	fixed := time.Date(2024, 2, 13, 9, 30, 0, 0, time.UTC)
	clock := FixedClock{T: fixed}
	for i := 0; i < 5; i++ {
		if got := clock.Now(); !got.Equal(fixed) {
			t.Errorf("FixedClock.Now() = %v, want %v", got, fixed)
		}
	}
}

func TestManualClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 2, 13, 9, 30, 0, 0, time.UTC)
	clock := NewManualClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Fatalf("initial time = %v, want %v", got, start)
	}

	clock.Advance(time.Hour)
	if got, want := clock.Now(), start.Add(time.Hour); !got.Equal(want) {
		t.Errorf("after Advance(1h) = %v, want %v", got, want)
	}

	pinned := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock.Set(pinned)
	if got := clock.Now(); !got.Equal(pinned) {
		t.Errorf("after Set() = %v, want %v", got, pinned)
	}
}

func TestWithClockAndClockFromContext(t *testing.T) {
	fixed := time.Date(2024, 2, 13, 9, 30, 0, 0, time.UTC)
	ctx := WithClock(context.Background(), FixedClock{T: fixed})

	got := ClockFromContext(ctx).Now()
	if !got.Equal(fixed) {
		t.Errorf("ClockFromContext().Now() = %v, want %v", got, fixed)
	}
}

func TestClockFromContextDefaultsToSystemClock(t *testing.T) {
	before := time.Now()
	got := ClockFromContext(context.Background()).Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("default clock returned %v, want between %v and %v", got, before, after)
	}
}

func TestNowConvenienceFunction(t *testing.T) {
	fixed := time.Date(2024, 2, 13, 14, 45, 30, 0, time.UTC)
	ctx := WithClock(context.Background(), FixedClock{T: fixed})
	if got := Now(ctx); !got.Equal(fixed) {
		t.Errorf("Now(ctx) = %v, want %v", got, fixed)
	}
}

func TestManualClockIsSafeForConcurrentReads(t *testing.T) {
	clock := NewManualClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	done := make(chan time.Time, 50)
	for i := 0; i < 50; i++ {
		go func() { done <- clock.Now() }()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
}
