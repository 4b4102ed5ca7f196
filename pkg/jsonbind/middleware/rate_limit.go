package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultSweepInterval = time.Minute

// KeyFunc extracts the rate limiting key from a request.
type KeyFunc func(*http.Request) string

// RemoteHostKey keys requests by client host, ignoring the port.
func RemoteHostKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimiter keeps a token bucket per key. Call Close to stop the
// background sweep.
type RateLimiter struct {
	logger     *slog.Logger
	extractKey KeyFunc
	limit      rate.Limit
	burst      int
	// OnLimit serves rejected requests. It defaults to a plain 429.
	OnLimit http.HandlerFunc

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

func NewRateLimiter(logger *slog.Logger, keyFunc KeyFunc, limit rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		logger:     logger,
		extractKey: keyFunc,
		limit:      limit,
		burst:      burst,
		limiters:   make(map[string]*rate.Limiter),
		done:       make(chan struct{}),
	}
	go rl.sweepEvery(defaultSweepInterval)
	return rl
}

func (rl *RateLimiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// Sweep drops limiters whose bucket is full again, since they're
// indistinguishable from new ones.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for key, limiter := range rl.limiters {
		if limiter.TokensAt(now) >= float64(rl.burst) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
	})
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.extractKey(r)
		if rl.limiter(key).Allow() {
			next.ServeHTTP(w, r)
			return
		}
		rl.logger.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		if rl.OnLimit != nil {
			rl.OnLimit(w, r)
			return
		}
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
	})
}
