package session

import "sync/atomic"

// SubmissionGuard is the single-acquisition latch that makes timer
// expiry, violation breach and explicit submit mutually exclusive
// triggers for the terminal submission of one session. TryAcquire
// returns true exactly once per session lifetime.
//
// The guard only prevents redundant submission calls; the scoring
// engine's already-submitted check is the real correctness backstop.
type SubmissionGuard struct {
	acquired atomic.Bool
}

// NewSubmissionGuard returns an unacquired guard.
func NewSubmissionGuard() *SubmissionGuard {
	return &SubmissionGuard{}
}

// TryAcquire atomically acquires the guard. Every call after the first
// returns false.
func (g *SubmissionGuard) TryAcquire() bool {
	return g.acquired.CompareAndSwap(false, true)
}

// Acquired reports whether the guard has been taken.
func (g *SubmissionGuard) Acquired() bool {
	return g.acquired.Load()
}

// Reset releases the guard. Only valid when constructing a new session,
// never mid-session.
func (g *SubmissionGuard) Reset() {
	g.acquired.Store(false)
}
