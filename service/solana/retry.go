package solana

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff decides how long to wait after a failed attempt.
// attempt is 1-based: Delay(1) is the wait after the first failure.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same interval after every failure.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Delay(int) time.Duration {
	return b.Interval
}

// MaxBackoffDelay caps ExponentialBackoff when Max is unset.
const MaxBackoffDelay = time.Hour

// ExponentialBackoff doubles Base per attempt up to Max, or MaxBackoffDelay
// when Max is zero. With Jitter set, the delay is drawn uniformly from
// [0, computed] ("full jitter").
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Base <= 0 {
		return 0
	}
	limit := b.Max
	if limit <= 0 {
		limit = MaxBackoffDelay
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		// doubling would pass limit
		if d > limit/2 {
			d = limit
			break
		}
		d *= 2
	}
	if d > limit {
		d = limit
	}
	if b.Jitter {
		n := int64(d)
		if n < math.MaxInt64 {
			n++
		}
		d = time.Duration(rand.Int64N(n))
	}
	return d
}

// NewBackoff builds a Backoff by strategy name: "fixed" or "exponential".
// Unknown names fall back to fixed.
func NewBackoff(strategy string, interval, max time.Duration) Backoff {
	if strategy == "exponential" {
		return ExponentialBackoff{Base: interval, Max: max, Jitter: true}
	}
	return FixedBackoff{Interval: interval}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
