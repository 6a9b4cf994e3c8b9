package client

import (
	"math"
	"time"
)

// backoff computes capped exponential reconnect delays.
type backoff struct {
	base    time.Duration
	max     time.Duration
	factor  float64
	attempt int
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return &backoff{base: base, max: max, factor: 2.0}
}

// next returns the delay for the current attempt and advances the counter.
func (b *backoff) next() time.Duration {
	delay := float64(b.base) * math.Pow(b.factor, float64(b.attempt))
	if delay > float64(b.max) {
		delay = float64(b.max)
	}
	b.attempt++
	return time.Duration(delay)
}

// reset returns the backoff to its minimum, called after a successful connect.
func (b *backoff) reset() {
	b.attempt = 0
}

func (b *backoff) attempts() int {
	return b.attempt
}
