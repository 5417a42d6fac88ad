package connection

import (
	"math"
	"math/rand/v2"
	"time"
)

// Retryer decides how long to wait before the next connection attempt.
// attempt is 0 for the first retry. Returning false stops retrying.
type Retryer interface {
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
}

// Backoff grows the delay exponentially up to MaxDelay, with optional
// jitter of +/- JitterFactor of the delay.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxRetries of 0 retries forever.
	MaxRetries   int
	JitterFactor float64
}

func NewBackoff() *Backoff {
	return &Backoff{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.3,
	}
}

func (b *Backoff) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if b.MaxRetries > 0 && attempt >= b.MaxRetries {
		return 0, false
	}
	delay := math.Min(float64(b.InitialDelay)*math.Pow(b.Multiplier, float64(attempt)), float64(b.MaxDelay))
	if b.JitterFactor > 0 {
		//nolint:gosec // jitter
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.InitialDelay)
		}
	}
	return time.Duration(delay), true
}

// FixedDelay waits the same Delay between attempts.
type FixedDelay struct {
	Delay      time.Duration
	MaxRetries int
}

func (f FixedDelay) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if f.MaxRetries > 0 && attempt >= f.MaxRetries {
		return 0, false
	}
	return f.Delay, true
}
