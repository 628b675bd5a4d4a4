package embedding

import (
	"sync"
	"time"
)

const windowSeconds = 60

type bucket struct {
	sec   int64
	count int64
}

// Limiter enforces a requests-per-minute budget over a sliding one-minute
// window kept as sixty one-second buckets. Admission checks the window total
// and records the request under one lock, so concurrent callers racing for
// the last slot admit exactly one of them.
type Limiter struct {
	limit int64
	now   func() time.Time

	mu      sync.Mutex
	buckets [windowSeconds]bucket
}

// NewLimiter returns a limiter allowing perMinute requests. perMinute <= 0
// disables limiting.
func NewLimiter(perMinute int) *Limiter {
	return &Limiter{limit: int64(perMinute), now: time.Now}
}

// Allow records a request and reports whether it fits the budget. A rejected
// request is not counted and comes with the time until a slot frees up.
func (l *Limiter) Allow() (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}
	now := l.now()
	sec := now.Unix()

	l.mu.Lock()
	defer l.mu.Unlock()

	total, oldest := l.window(sec)
	if total < l.limit {
		b := &l.buckets[sec%windowSeconds]
		if b.sec != sec {
			*b = bucket{sec: sec}
		}
		b.count++
		return true, 0
	}

	wait := time.Unix(oldest+windowSeconds, 0).Sub(now)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return false, wait
}

// window sums counts for the sixty seconds ending at sec and returns the
// earliest second that still holds requests. Callers hold l.mu.
func (l *Limiter) window(sec int64) (total, oldest int64) {
	oldest = sec
	for _, b := range l.buckets {
		if b.count == 0 || b.sec <= sec-windowSeconds || b.sec > sec {
			continue
		}
		total += b.count
		if b.sec < oldest {
			oldest = b.sec
		}
	}
	return total, oldest
}
