package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"assent/pkg/requestcontext"
)

// RateLimiter applies a per-client token bucket to public, unauthenticated
// routes. Buckets are keyed by client IP and evicted after an idle period so
// the map cannot grow without bound.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int
	logger  *slog.Logger
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const bucketIdleEviction = 10 * time.Minute

// NewRateLimiter creates a limiter allowing rps sustained requests with the
// given burst per client.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger,
	}
}

// Middleware rejects requests exceeding the per-client budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		if !rl.allow(ip) {
			ctx := r.Context()
			rl.logger.WarnContext(ctx, "rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"ip", ip,
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	bucket, ok := rl.clients[ip]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = bucket
	}
	bucket.lastSeen = now

	// Opportunistic eviction keeps the map bounded without a janitor goroutine.
	if len(rl.clients) > 1024 {
		for key, b := range rl.clients {
			if now.Sub(b.lastSeen) > bucketIdleEviction {
				delete(rl.clients, key)
			}
		}
	}

	return bucket.limiter.Allow()
}
