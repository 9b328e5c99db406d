package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// sweepEvery is how many Allow calls pass between idle-client sweeps.
const sweepEvery = 1024

// RateLimiter implements per-client sliding window rate limiting.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientWindow
	maxPerMin  int
	windowSize time.Duration
	calls      int
	now        func() time.Time
}

// clientWindow tracks request timestamps for a single client.
type clientWindow struct {
	timestamps []time.Time
}

// NewRateLimiter creates a rate limiter with the given requests-per-minute
// limit. If limit <= 0, rate limiting is disabled.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	return &RateLimiter{
		clients:    make(map[string]*clientWindow),
		maxPerMin:  maxPerMinute,
		windowSize: time.Minute,
		now:        time.Now,
	}
}

// Allow reports whether the client identified by key is within the limit,
// and counts the request if so.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.maxPerMin <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.windowSize)

	rl.calls++
	if rl.calls%sweepEvery == 0 {
		rl.sweep(cutoff)
	}

	cw, ok := rl.clients[key]
	if !ok {
		cw = &clientWindow{}
		rl.clients[key] = cw
	}

	valid := cw.timestamps[:0]
	for _, t := range cw.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	cw.timestamps = valid

	if len(cw.timestamps) >= rl.maxPerMin {
		return false
	}

	cw.timestamps = append(cw.timestamps, now)
	return true
}

// sweep drops clients with no request inside the window. Caller holds mu.
func (rl *RateLimiter) sweep(cutoff time.Time) {
	for key, cw := range rl.clients {
		if n := len(cw.timestamps); n == 0 || !cw.timestamps[n-1].After(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// ClientIP returns the caller's address, preferring the first
// X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
