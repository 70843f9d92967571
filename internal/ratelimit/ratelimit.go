// Package ratelimit provides the per-connection token bucket that
// throttles inbound websocket frames.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Limiter is a lock-free token bucket.
type Limiter struct {
	tokens   int32
	rate     time.Duration
	burst    int32
	lastTick int64
}

func New(burst int32, rate time.Duration) *Limiter {
	return &Limiter{
		tokens:   burst,
		rate:     rate,
		burst:    burst,
		lastTick: time.Now().UnixNano(),
	}
}

func (l *Limiter) Allow() bool {
	now := time.Now().UnixNano()
	last := atomic.LoadInt64(&l.lastTick)
	elapsed := now - last

	generated := int32(elapsed / int64(l.rate))
	if generated > 0 {
		if atomic.CompareAndSwapInt64(&l.lastTick, last, now) {
			current := atomic.LoadInt32(&l.tokens)
			newBalance := current + generated
			if newBalance > l.burst {
				newBalance = l.burst
			}
			atomic.StoreInt32(&l.tokens, newBalance)
		}
	}

	for {
		current := atomic.LoadInt32(&l.tokens)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&l.tokens, current, current-1) {
			return true
		}
	}
}
