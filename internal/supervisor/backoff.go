package supervisor

import (
	"math/rand"
	"time"
)

// backoff implements spec.md §4.7's reconnection schedule: initial 1s,
// factor 2, capped at 60s, with up to 20% jitter, giving up after maxTries.
type backoff struct {
	initial  time.Duration
	factor   float64
	max      time.Duration
	maxTries int

	attempt int
}

func newBackoff() *backoff {
	return &backoff{initial: time.Second, factor: 2, max: 60 * time.Second, maxTries: 10}
}

// next returns the delay before the next attempt and whether the retry
// budget is exhausted.
func (b *backoff) next() (time.Duration, bool) {
	if b.attempt >= b.maxTries {
		return 0, false
	}
	d := float64(b.initial)
	for i := 0; i < b.attempt; i++ {
		d *= b.factor
	}
	b.attempt++
	if d > float64(b.max) {
		d = float64(b.max)
	}
	jitter := d * 0.2 * rand.Float64()
	return time.Duration(d + jitter), true
}

func (b *backoff) reset() { b.attempt = 0 }
