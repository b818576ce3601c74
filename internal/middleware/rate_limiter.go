package middleware

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// ClientRateLimiter keeps one token bucket per key (an endpoint scope plus
// client IP). Idle buckets are evicted by the cache janitor once ttl passes.
type ClientRateLimiter struct {
	mu       sync.Mutex
	visitors *gocache.Cache
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewClientRateLimiter allows up to requests events per window for each key,
// plus burst extra events up front. Non-positive arguments fall back to
// permissive defaults.
func NewClientRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *ClientRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &ClientRateLimiter{
		visitors: gocache.New(ttl, ttl),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether the caller identified by key may proceed now.
func (l *ClientRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	limiter := l.visitorLocked(key)
	now := l.now()
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients, including ones awaiting eviction.
func (l *ClientRateLimiter) Len() int {
	return l.visitors.ItemCount()
}

// Close drops every tracked bucket.
func (l *ClientRateLimiter) Close() {
	l.visitors.Flush()
}

// WithNowFunc allows tests to override the time source.
func (l *ClientRateLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *ClientRateLimiter) visitorLocked(key string) *rate.Limiter {
	if cached, ok := l.visitors.Get(key); ok {
		limiter := cached.(*rate.Limiter)
		// refresh the idle deadline
		l.visitors.Set(key, limiter, l.ttl)
		return limiter
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	l.visitors.Set(key, limiter, l.ttl)
	return limiter
}
