package middleware

import (
	"net"
	"net/http"
	"sync"

	"listquery/internal/observability"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures token bucket limiting.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	// PerClient keys buckets by remote IP instead of sharing one bucket.
	PerClient bool
}

type limiterSet struct {
	cfg    RateLimitConfig
	shared *rate.Limiter

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	s := &limiterSet{cfg: cfg}
	if cfg.PerClient {
		s.clients = make(map[string]*rate.Limiter)
	} else {
		s.shared = s.newLimiter()
	}
	return s
}

func (s *limiterSet) newLimiter() *rate.Limiter {
	if s.cfg.RPS <= 0 || s.cfg.Burst <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(s.cfg.RPS), s.cfg.Burst)
}

func (s *limiterSet) limiter(r *http.Request) *rate.Limiter {
	if s.shared != nil {
		return s.shared
	}
	key := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		key = host
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.clients[key]
	if !ok {
		l = s.newLimiter()
		s.clients[key] = l
	}
	return l
}

// RateLimitMiddleware rejects requests with 429 once the bucket is empty.
func RateLimitMiddleware(cfg RateLimitConfig, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	limiters := newLimiterSet(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.limiter(r).Allow() {
				metrics.RecordRateLimited(r.Context(), r.URL.Path)
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
