package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter applies a per-client-address token bucket. Limiters are created
// on first sight of an address and pruned when idle past the stale window.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const staleClientWindow = 10 * time.Minute

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *ipLimiter) allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, cl := range l.limiters {
		if now.Sub(cl.lastSeen) > staleClientWindow {
			delete(l.limiters, key)
		}
	}

	cl, ok := l.limiters[addr]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[addr] = cl
	}
	cl.lastSeen = now

	return cl.limiter.Allow()
}
