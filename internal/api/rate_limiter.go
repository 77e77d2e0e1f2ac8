package api

import (
	"net/http"
	"sync"
	"time"

	apierrors "github.com/gtrade-dashboard/internal/errors"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 20
	defaultBurst             = 40
	limiterIdleTTL           = 10 * time.Minute
	limiterSweepThreshold    = 1024
)

// RateLimiter enforces a per-client-IP request rate
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex

	limit     rate.Limit
	burstSize int
	now       func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter; zero values pick the defaults
func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &RateLimiter{
		limiters:  make(map[string]*clientLimiter),
		limit:     rate.Limit(requestsPerSecond),
		burstSize: burst,
		now:       time.Now,
	}
}

// Allow reports whether the client may make a request now
func (rl *RateLimiter) Allow(client string) bool {
	return rl.getLimiter(client).Allow()
}

// getLimiter returns the limiter for a client, creating it on first use
func (rl *RateLimiter) getLimiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if cl, ok := rl.limiters[client]; ok {
		cl.lastSeen = now
		return cl.limiter
	}

	if len(rl.limiters) >= limiterSweepThreshold {
		rl.sweepLocked(now)
	}

	cl := &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burstSize), lastSeen: now}
	rl.limiters[client] = cl
	return cl.limiter
}

// sweepLocked drops limiters idle for longer than limiterIdleTTL
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, key)
		}
	}
}

// Size returns the number of tracked clients
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				respondCategorized(w, r, apierrors.NewRateLimitError(float64(rl.limit)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
