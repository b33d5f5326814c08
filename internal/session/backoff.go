package session

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes jittered exponential retry delays. The deterministic half
// of each delay doubles per attempt; the other half is random jitter drawn
// from rng, so delays stay within [delay/2, delay) and never exceed Max.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int

	rng *rand.Rand
}

// NewBackoff builds a policy. With a nil rng the jitter half collapses to its
// upper bound and delays are fully deterministic, which tests rely on;
// production callers pass a seeded source.
func NewBackoff(base, max time.Duration, maxAttempts int, rng *rand.Rand) *Backoff {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = base
	}
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	return &Backoff{
		Base:        base,
		Max:         max,
		MaxAttempts: maxAttempts,
		rng:         rng,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.Base) * math.Pow(2, float64(attempt))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	half := time.Duration(delay) / 2
	return half + b.jitter(half)
}

func (b *Backoff) jitter(limit time.Duration) time.Duration {
	if b.rng == nil || limit <= 0 {
		return limit
	}
	return time.Duration(b.rng.Int63n(int64(limit)))
}
