package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out a token bucket per key. Each bucket holds maxHits tokens
// and refills at maxHits per window.
type Limiter struct {
	mu        sync.RWMutex
	buckets   map[string]*bucket
	every     rate.Limit
	maxHits   int
	idleTTL   time.Duration
	lastPrune time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	if maxHits <= 0 {
		maxHits = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		every:   rate.Every(window / time.Duration(maxHits)),
		maxHits: maxHits,
		idleTTL: 2 * window,
	}
}

func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt reports whether a hit for key at now is within the limit.
func (l *Limiter) AllowAt(key string, now time.Time) bool {
	return l.get(key, now).AllowN(now, 1)
}

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		b.lastSeen = now
		l.mu.Unlock()
		return b.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}

	if now.Sub(l.lastPrune) > l.idleTTL {
		l.prune(now)
	}

	b = &bucket{
		limiter:  rate.NewLimiter(l.every, l.maxHits),
		lastSeen: now,
	}
	l.buckets[key] = b
	return b.limiter
}

// prune drops buckets idle long enough to have refilled. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastPrune = now
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
