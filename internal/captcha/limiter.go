package captcha

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	defaultAttemptsPerMinute = 30
	defaultAttemptBurst      = 10
	limiterIdleTTL           = 15 * time.Minute
)

// AttemptLimiter throttles verification attempts per client key with a
// token bucket. Every access renews a bucket's expiry, so only buckets of
// clients idle for limiterIdleTTL are dropped.
type AttemptLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	limit    rate.Limit
	burst    int
}

// NewAttemptLimiter allows attemptsPerMinute sustained attempts with the given burst.
func NewAttemptLimiter(attemptsPerMinute float64, burst int) *AttemptLimiter {
	return newAttemptLimiter(attemptsPerMinute, burst, limiterIdleTTL)
}

func newAttemptLimiter(attemptsPerMinute float64, burst int, idleTTL time.Duration) *AttemptLimiter {
	if attemptsPerMinute <= 0 {
		attemptsPerMinute = defaultAttemptsPerMinute
	}
	if burst <= 0 {
		burst = defaultAttemptBurst
	}
	return &AttemptLimiter{
		limiters: gocache.New(idleTTL, idleTTL),
		limit:    rate.Limit(attemptsPerMinute / 60),
		burst:    burst,
	}
}

// Allow consumes one token for clientKey and reports whether it was available.
func (l *AttemptLimiter) Allow(clientKey string) bool {
	return l.limiterFor(clientKey).Allow()
}

func (l *AttemptLimiter) limiterFor(clientKey string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if value, found := l.limiters.Get(clientKey); found {
		limiter := value.(*rate.Limiter)
		l.limiters.Set(clientKey, limiter, gocache.DefaultExpiration)
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Set(clientKey, limiter, gocache.DefaultExpiration)
	return limiter
}
