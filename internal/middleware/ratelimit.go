package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Counselor calls cost money; each user gets a token bucket.
const (
	counselorRPS        = rate.Limit(20.0 / 60.0) // 20/min
	counselorBurst      = 5
	limiterIdleTTL      = 30 * time.Minute
	limiterSweepEvery   = 5 * time.Minute
	rateLimitedResponse = `{"error":"too many requests, please slow down"}`
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// UserRateLimiter keeps one limiter per authenticated user. It must sit
// behind RequireAuth.
type UserRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func NewUserRateLimiter(limit rate.Limit, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
	}
}

// NewCounselorRateLimiter allows 20 requests a minute with a burst of 5.
func NewCounselorRateLimiter() *UserRateLimiter {
	return NewUserRateLimiter(counselorRPS, counselorBurst)
}

func (l *UserRateLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastUse = l.now()
	return e.limiter
}

// Sweep forgets limiters idle for longer than limiterIdleTTL.
func (l *UserRateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, e := range l.entries {
		if now.Sub(e.lastUse) > limiterIdleTTL {
			delete(l.entries, k)
		}
	}
}

// Run sweeps periodically until ctx is done.
func (l *UserRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *UserRateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if id, ok := UserIDFrom(r.Context()); ok {
			key = id.String()
		}
		if !l.get(key).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(rateLimitedResponse))
			return
		}
		next.ServeHTTP(w, r)
	})
}
