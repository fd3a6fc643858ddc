package auth

import (
	"sync"
	"time"
)

const (
	// DefaultMaxAttempts is the failed-login threshold before lockout.
	DefaultMaxAttempts = 5
	// DefaultLockoutDuration is how long the gate stays locked.
	DefaultLockoutDuration = 300 * time.Second
)

// LockoutGuard tracks consecutive failed login attempts and enforces a
// timed lockout once the threshold is reached. The authoritative check is
// a timestamp comparison on every call; there is no background timer.
//
// The guard is advisory per client: its state mirrors into client-durable
// storage and a client that clears that storage resets its own lockout.
// That is an accepted trust boundary for a single-operator tool.
type LockoutGuard struct {
	mu              sync.Mutex
	maxAttempts     int
	lockoutDuration time.Duration
	failedAttempts  int
	lockoutUntil    time.Time
}

// LockoutState is the client-durable wire shape of the guard.
// LockoutUntil is epoch milliseconds; zero means no active lockout.
type LockoutState struct {
	FailedAttempts int   `json:"failedAttempts"`
	LockoutUntil   int64 `json:"lockoutUntil,omitempty"`
}

// NewLockoutGuard builds a guard with the given threshold and duration.
// Non-positive values fall back to the defaults.
func NewLockoutGuard(maxAttempts int, lockoutDuration time.Duration) *LockoutGuard {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockoutDuration <= 0 {
		lockoutDuration = DefaultLockoutDuration
	}
	return &LockoutGuard{maxAttempts: maxAttempts, lockoutDuration: lockoutDuration}
}

// reap resets the guard when a lockout has elapsed. Must hold mu.
// An attempt made exactly at lockoutUntil is already open: the guard is
// locked only while now < lockoutUntil.
func (g *LockoutGuard) reap(now time.Time) {
	if !g.lockoutUntil.IsZero() && !now.Before(g.lockoutUntil) {
		g.failedAttempts = 0
		g.lockoutUntil = time.Time{}
	}
}

// RecordFailure registers a failed attempt and returns the new count.
func (g *LockoutGuard) RecordFailure() int {
	return g.RecordFailureAt(time.Now())
}

// RecordFailureAt is RecordFailure with an injected clock for tests.
func (g *LockoutGuard) RecordFailureAt(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reap(now)
	g.failedAttempts++
	if g.failedAttempts >= g.maxAttempts {
		g.lockoutUntil = now.Add(g.lockoutDuration)
	}
	return g.failedAttempts
}

// RecordSuccess clears all failure state after a successful login.
func (g *LockoutGuard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failedAttempts = 0
	g.lockoutUntil = time.Time{}
}

// RemainingLockout returns how long the lockout still holds, or zero.
func (g *LockoutGuard) RemainingLockout() time.Duration {
	return g.RemainingLockoutAt(time.Now())
}

// RemainingLockoutAt is RemainingLockout with an injected clock.
func (g *LockoutGuard) RemainingLockoutAt(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reap(now)
	if g.lockoutUntil.IsZero() {
		return 0
	}
	return g.lockoutUntil.Sub(now)
}

// FailedAttempts returns the current consecutive failure count.
func (g *LockoutGuard) FailedAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failedAttempts
}

// RemainingAttempts returns how many failures remain before lockout.
func (g *LockoutGuard) RemainingAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.maxAttempts - g.failedAttempts
	if n < 0 {
		return 0
	}
	return n
}

// State snapshots the guard for client-durable storage.
func (g *LockoutGuard) State() LockoutState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := LockoutState{FailedAttempts: g.failedAttempts}
	if !g.lockoutUntil.IsZero() {
		st.LockoutUntil = g.lockoutUntil.UnixMilli()
	}
	return st
}

// Restore replays a client-durable snapshot into the guard.
func (g *LockoutGuard) Restore(st LockoutState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failedAttempts = st.FailedAttempts
	if st.LockoutUntil > 0 {
		g.lockoutUntil = time.UnixMilli(st.LockoutUntil)
	} else {
		g.lockoutUntil = time.Time{}
	}
}
