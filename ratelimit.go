package dataloader

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 10
	defaultBurst             = 10
)

// HostRateLimiter is the default RateLimiter: an independent token bucket per
// destination host, a shared fallback rate, and per-host Retry-After
// deadlines reported by origins. It is safe for concurrent use.
type HostRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	rates      map[string]hostRate
	retryAfter map[string]time.Time
	fallback   hostRate
}

type hostRate struct {
	perSecond float64
	burst     int
}

// NewHostRateLimiter creates a limiter admitting requestsPerSecond with the
// given burst for every host that has no specific rate registered.
// Non-positive arguments fall back to 10/10.
func NewHostRateLimiter(requestsPerSecond float64, burst int) *HostRateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &HostRateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rates:      make(map[string]hostRate),
		retryAfter: make(map[string]time.Time),
		fallback:   hostRate{perSecond: requestsPerSecond, burst: burst},
	}
}

// SetHostRate registers a specific rate for one host, replacing its bucket.
func (l *HostRateLimiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rates[host] = hostRate{perSecond: requestsPerSecond, burst: burst}
	delete(l.limiters, host)
}

// ShouldProceed reports whether a transfer to host is admitted. A pending
// Retry-After deadline denies admission without consuming a token; expired
// deadlines are dropped.
func (l *HostRateLimiter) ShouldProceed(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if deadline, exists := l.retryAfter[host]; exists {
		if time.Now().Before(deadline) {
			return false
		}
		delete(l.retryAfter, host)
	}

	return l.limiterLocked(host).Allow()
}

// SetRetryAfter records a back-off deadline for host. Non-positive intervals
// clear any pending deadline.
func (l *HostRateLimiter) SetRetryAfter(host string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d <= 0 {
		delete(l.retryAfter, host)
		return
	}
	l.retryAfter[host] = time.Now().Add(d)
}

// RetryAfterDeadline returns the pending back-off deadline for host, if any.
func (l *HostRateLimiter) RetryAfterDeadline(host string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline, exists := l.retryAfter[host]
	return deadline, exists
}

func (l *HostRateLimiter) limiterLocked(host string) *rate.Limiter {
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}
	r, exists := l.rates[host]
	if !exists {
		r = l.fallback
	}
	limiter := rate.NewLimiter(rate.Limit(r.perSecond), r.burst)
	l.limiters[host] = limiter
	return limiter
}
