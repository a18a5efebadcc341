package transport

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes bounded exponential reconnect delays with jitter.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64 // growth per attempt; 0 means 2
	Jitter float64 // fraction of the delay added or removed at random, 0..1

	rand func() float64 // [0,1); nil uses math/rand/v2
}

// Next returns the delay before reconnect attempt n (0-based).
func (b Backoff) Next(attempt int) time.Duration {
	lo, hi := b.Min, b.Max
	if lo <= 0 {
		lo = 500 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2
	}
	if attempt < 0 {
		attempt = 0
	}

	d := float64(lo) * math.Pow(factor, float64(attempt))
	if d > float64(hi) || math.IsInf(d, 0) {
		d = float64(hi)
	}

	if b.Jitter > 0 {
		r := b.rand
		if r == nil {
			r = rand.Float64
		}
		d += d * b.Jitter * (2*r() - 1)
	}
	if d > float64(hi) {
		d = float64(hi)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
