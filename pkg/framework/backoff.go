package framework

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff computes growing delays between retries.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter scales each delay randomly into [0.5, 1.5).
	Jitter bool

	attempt int
	rng     *rand.Rand
}

// NewBackoff creates a Backoff doubling from initial up to max.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{Initial: initial, Max: max, Multiplier: 2}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return b.delay(b.attempt)
}

// Reset restarts from the initial delay, usually after a success.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempts returns the number of delays handed out since last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}

// Wait sleeps for the next delay. It returns ctx.Err() if ctx is done first.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *Backoff) delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	mul := b.Multiplier
	if mul < 1 {
		mul = 1
	}
	d := float64(b.Initial) * math.Pow(mul, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter {
		if b.rng == nil {
			b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		d *= 0.5 + b.rng.Float64()
	}
	return time.Duration(d)
}
