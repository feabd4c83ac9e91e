package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key. Idle buckets are dropped once full again.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	burst   int
	every   rate.Limit
	now     func() time.Time
}

// New creates a limiter allowing bursts of capacity and refillPerSec sustained.
func New(capacity, refillPerSec float64) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		clients: make(map[string]*client),
		burst:   int(capacity),
		every:   rate.Limit(refillPerSec),
		now:     time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{lim: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	if len(l.clients) > 1024 {
		l.sweep(now)
	}
	return c.lim.AllowN(now, 1)
}

// sweep forgets buckets that would be full by now.
func (l *Limiter) sweep(now time.Time) {
	if l.every <= 0 {
		return
	}
	full := time.Duration(float64(l.burst) / float64(l.every) * float64(time.Second))
	for k, c := range l.clients {
		if now.Sub(c.seen) >= full {
			delete(l.clients, k)
		}
	}
}
