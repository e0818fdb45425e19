package api

import (
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleAfter    = 10 * time.Minute
	limiterSweepEvery   = 5 * time.Minute
	defaultLimiterBurst = 5
)

// RateLimiter applies a token bucket per client key.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	r         rate.Limit
	burst     int
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rpm requests per minute per key with the given
// burst. An rpm of zero disables limiting.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = defaultLimiterBurst
	}
	var r rate.Limit
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60)
	}
	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		r:         r,
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Enabled reports whether requests are limited at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.r > 0
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.Reserve(key)
	return ok
}

// Reserve takes a token for key if one is available. Otherwise it reports
// how long until the next token, without consuming it.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	if !rl.Enabled() {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > limiterSweepEvery {
		for k, e := range rl.limiters {
			if now.Sub(e.lastSeen) > limiterIdleAfter {
				delete(rl.limiters, k)
			}
		}
		rl.lastSweep = now
	}

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.r, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now

	res := e.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// retryAfterSeconds rounds delay up to whole seconds, at least one.
func retryAfterSeconds(delay time.Duration) int {
	return max(1, int(math.Ceil(delay.Seconds())))
}

// clientKey identifies the caller by remote IP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
