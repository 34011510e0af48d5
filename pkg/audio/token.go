package audio

import (
	"sync/atomic"
	"time"
)

// DefaultCancelGrace is how long a cancellation blocks new work before the
// token resets itself.
const DefaultCancelGrace = 300 * time.Millisecond

// Token is the global "stop all narration" signal. Every sequence runs under
// a generation; a generation stays valid until the next Begin or Cancel.
// The cancelled flag additionally blocks all generations for a grace period
// after Cancel.
type Token struct {
	gen       atomic.Uint64
	cancelled atomic.Bool
	grace     time.Duration
}

// NewToken returns a token whose cancellation clears after grace.
func NewToken(grace time.Duration) *Token {
	if grace <= 0 {
		grace = DefaultCancelGrace
	}
	return &Token{grace: grace}
}

// Begin starts a new generation and returns it. Any older generation stops
// being valid.
func (t *Token) Begin() uint64 {
	g := t.gen.Add(1)
	t.cancelled.Store(false)
	return g
}

// Cancel invalidates the current generation and raises the cancelled flag.
// The flag drops after the grace window unless another Begin or Cancel
// happened in between.
func (t *Token) Cancel() {
	epoch := t.gen.Add(1)
	t.cancelled.Store(true)
	time.AfterFunc(t.grace, func() {
		if t.gen.Load() == epoch {
			t.cancelled.Store(false)
		}
	})
}

// Valid reports whether work tagged with gen may proceed.
func (t *Token) Valid(gen uint64) bool {
	return !t.cancelled.Load() && t.gen.Load() == gen
}

// Cancelled reports whether a cancellation is inside its grace window.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Generation returns the latest generation.
func (t *Token) Generation() uint64 {
	return t.gen.Load()
}
