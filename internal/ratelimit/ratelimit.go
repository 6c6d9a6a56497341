// Package ratelimit throttles signup attempts per anonymous origin.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SignupLimiter allows a fixed number of signups per origin per window,
// modeled as a token bucket whose burst equals the window allowance. The
// sixth immediate attempt with a 5/24h budget is rejected; capacity refills
// gradually over the window rather than all at once.
type SignupLimiter struct {
	mu      sync.Mutex
	origins map[string]*origin
	every   rate.Limit
	burst   int
	idle    time.Duration
}

type origin struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewSignupLimiter builds a limiter allowing perWindow attempts per origin
// over the given window.
func NewSignupLimiter(perWindow int, window time.Duration) *SignupLimiter {
	if perWindow < 1 {
		perWindow = 1
	}
	return &SignupLimiter{
		origins: make(map[string]*origin),
		every:   rate.Every(window / time.Duration(perWindow)),
		burst:   perWindow,
		idle:    window,
	}
}

// Allow reports whether the origin may attempt a signup now and consumes one
// attempt if so.
func (l *SignupLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	o, ok := l.origins[key]
	if !ok {
		if len(l.origins) >= 4096 {
			l.prune(now)
		}
		o = &origin{lim: rate.NewLimiter(l.every, l.burst)}
		l.origins[key] = o
	}
	o.seen = now
	return o.lim.Allow()
}

// prune drops origins idle for a full window; their buckets are full again
// anyway. Caller holds the lock.
func (l *SignupLimiter) prune(now time.Time) {
	for k, o := range l.origins {
		if now.Sub(o.seen) > l.idle {
			delete(l.origins, k)
		}
	}
}
