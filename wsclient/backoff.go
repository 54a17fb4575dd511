package wsclient

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: Min grows by Factor per attempt up to Max,
// then Jitter spreads it by ±Jitter*delay.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultBackoff is used when a config leaves the window empty.
var DefaultBackoff = Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.1}

// Next returns the delay before attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = DefaultBackoff.Min
	}
	max := b.Max
	if max <= 0 {
		max = DefaultBackoff.Max
	}
	if max < min {
		max = min
	}
	factor := b.Factor
	if factor < 1 {
		factor = DefaultBackoff.Factor
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max || next <= 0 {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
