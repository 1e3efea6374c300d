package coordinator

import (
	"math/rand"
	"time"
)

// DefaultMaxAttempts is the write budget of DefaultPolicy.
const DefaultMaxAttempts = 3

// RetryState tracks one invocation's progress. It is owned by that
// invocation and never shared.
type RetryState struct {
	// Attempt counts conditional writes issued so far.
	Attempt uint

	// MaxAttempts is the write budget.
	MaxAttempts uint

	// LastFailure is the most recent step failure, None if there was none.
	LastFailure FailureKind
}

// ShouldRetry reports whether a step failure of kind may be retried after
// attempt writes out of maxAttempts. Only version mismatches within the
// budget and creation conflicts are retryable.
func ShouldRetry(attempt, maxAttempts uint, kind FailureKind) bool {
	switch kind {
	case VersionMismatch:
		return attempt < maxAttempts
	case CreationConflict:
		// bounded to a single fallback by the coordinator
		return true
	default:
		return false
	}
}

// RetryPolicy decides whether and when a failed step is retried.
type RetryPolicy interface {
	// MaxAttempts is the conditional write budget of one invocation.
	MaxAttempts() uint

	// ShouldRetry reports whether a failure of kind after attempt writes is retried.
	ShouldRetry(attempt, maxAttempts uint, kind FailureKind) bool

	// Backoff is the delay before re-reading after the given failed attempt.
	Backoff(attempt uint) time.Duration
}

// DefaultPolicy returns a three-attempt policy without delay.
func DefaultPolicy() RetryPolicy {
	return Bounded{Attempts: DefaultMaxAttempts}
}

// Bounded retries version mismatches immediately up to Attempts writes.
type Bounded struct {
	Attempts uint
}

// MaxAttempts returns Attempts, at least 1.
func (b Bounded) MaxAttempts() uint {
	if b.Attempts == 0 {
		return 1
	}
	return b.Attempts
}

func (Bounded) ShouldRetry(attempt, maxAttempts uint, kind FailureKind) bool {
	return ShouldRetry(attempt, maxAttempts, kind)
}

func (Bounded) Backoff(uint) time.Duration { return 0 }

// Exponential retries like Bounded but waits between attempts. The delay
// after attempt n is Base*2^(n-1), capped at Max, then spread by up to
// ±Jitter of itself.
type Exponential struct {
	Attempts uint
	Base     time.Duration
	Max      time.Duration

	// Jitter is a fraction in [0, 1].
	Jitter float64
}

// NewExponential returns an Exponential policy with 50ms base delay, 2s cap
// and 20% jitter.
func NewExponential(attempts uint) Exponential {
	return Exponential{
		Attempts: attempts,
		Base:     50 * time.Millisecond,
		Max:      2 * time.Second,
		Jitter:   0.2,
	}
}

// MaxAttempts returns Attempts, at least 1.
func (e Exponential) MaxAttempts() uint {
	return Bounded{Attempts: e.Attempts}.MaxAttempts()
}

func (Exponential) ShouldRetry(attempt, maxAttempts uint, kind FailureKind) bool {
	return ShouldRetry(attempt, maxAttempts, kind)
}

func (e Exponential) Backoff(attempt uint) time.Duration {
	if e.Base <= 0 || attempt == 0 {
		return 0
	}
	delay := e.Base
	for i := uint(1); i < attempt; i++ {
		delay *= 2
		if e.Max > 0 && delay >= e.Max {
			delay = e.Max
			break
		}
	}
	if e.Max > 0 && delay > e.Max {
		delay = e.Max
	}

	jitter := e.Jitter
	if jitter > 1 {
		jitter = 1
	}
	if jitter > 0 {
		spread := float64(delay) * jitter
		delay += time.Duration(spread * (2*rand.Float64() - 1))
	}
	if delay < 0 {
		return 0
	}
	return delay
}
