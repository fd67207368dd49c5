package transport

import (
	"sync"
	"time"
)

// floodLimiter is a token bucket over outbound lines: a burst of sends goes
// out immediately, after which each line costs one token refilled at a fixed
// interval. Wait blocks the caller until a token is available, which is the
// classic client-side answer to server-side flood kill.
type floodLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	refill time.Duration
	last   time.Time

	sleep func(time.Duration) // replaced in tests
}

func newFloodLimiter(burst int, refill time.Duration) *floodLimiter {
	return &floodLimiter{
		tokens: float64(burst),
		burst:  float64(burst),
		refill: refill,
		last:   time.Now(),
		sleep:  time.Sleep,
	}
}

// Wait consumes one token, blocking until one is available.
func (f *floodLimiter) Wait() {
	f.mu.Lock()
	now := time.Now()
	f.tokens += now.Sub(f.last).Seconds() / f.refill.Seconds()
	if f.tokens > f.burst {
		f.tokens = f.burst
	}
	f.last = now

	if f.tokens >= 1 {
		f.tokens--
		f.mu.Unlock()
		return
	}

	wait := time.Duration((1 - f.tokens) * float64(f.refill))
	f.tokens = 0
	f.last = now.Add(wait)
	f.mu.Unlock()

	f.sleep(wait)
}
