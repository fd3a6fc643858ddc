package auth

import (
	"testing"
	"time"
)

func TestLockoutTripsAtThreshold(t *testing.T) {
	g := NewLockoutGuard(5, 300*time.Second)
	now := time.Unix(1_700_000_000, 0)

	for i := 1; i <= 4; i++ {
		if got := g.RecordFailureAt(now); got != i {
			t.Fatalf("failure %d: count = %d", i, got)
		}
		if g.RemainingLockoutAt(now) != 0 {
			t.Fatalf("failure %d: unexpected lockout", i)
		}
	}

	if got := g.RecordFailureAt(now); got != 5 {
		t.Fatalf("fifth failure: count = %d", got)
	}
	if rem := g.RemainingLockoutAt(now); rem != 300*time.Second {
		t.Fatalf("expected 300s lockout, got %v", rem)
	}
}

func TestLockoutBoundaryIsStrict(t *testing.T) {
	g := NewLockoutGuard(5, 300*time.Second)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		g.RecordFailureAt(now)
	}
	until := now.Add(300 * time.Second)

	if g.RemainingLockoutAt(until.Add(-time.Nanosecond)) == 0 {
		t.Fatalf("still locked just before lockoutUntil")
	}
	// Exactly at lockoutUntil the guard is open again, no grace period.
	if rem := g.RemainingLockoutAt(until); rem != 0 {
		t.Fatalf("expected open at lockoutUntil, got %v", rem)
	}
	if g.FailedAttempts() != 0 {
		t.Fatalf("expired lockout must reset the counter")
	}
}

func TestLockoutSuccessResets(t *testing.T) {
	g := NewLockoutGuard(5, 300*time.Second)
	now := time.Unix(1_700_000_000, 0)
	g.RecordFailureAt(now)
	g.RecordFailureAt(now)

	g.RecordSuccess()
	if g.FailedAttempts() != 0 {
		t.Fatalf("success must reset count")
	}
	if g.RemainingAttempts() != 5 {
		t.Fatalf("expected full attempt budget after success")
	}
}

func TestLockoutStateRoundTrip(t *testing.T) {
	g := NewLockoutGuard(5, 300*time.Second)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		g.RecordFailureAt(now)
	}

	st := g.State()
	if st.FailedAttempts != 5 {
		t.Fatalf("state count = %d", st.FailedAttempts)
	}
	if st.LockoutUntil != now.Add(300*time.Second).UnixMilli() {
		t.Fatalf("state lockoutUntil = %d", st.LockoutUntil)
	}

	fresh := NewLockoutGuard(5, 300*time.Second)
	fresh.Restore(st)
	if fresh.RemainingLockoutAt(now) != 300*time.Second {
		t.Fatalf("restored guard lost its lockout")
	}
}

func TestLockoutCountResumesAfterExpiry(t *testing.T) {
	g := NewLockoutGuard(5, 300*time.Second)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		g.RecordFailureAt(now)
	}

	later := now.Add(301 * time.Second)
	if got := g.RecordFailureAt(later); got != 1 {
		t.Fatalf("expected counting to restart at 1 after expiry, got %d", got)
	}
}
