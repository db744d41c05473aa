package auth

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig sizes the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimitConfig returns the limits used when the config file sets none.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 50, Burst: 100}
}

const (
	clientIdle = 10 * time.Minute
	maxTracked = 1000
)

// RateLimiter throttles requests per client and locks out clients that
// keep presenting bad tokens.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	lockout *lockout
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns a limiter using config for every client.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return newRateLimiter(config, time.Now)
}

func newRateLimiter(config RateLimitConfig, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		config:  config,
		now:     now,
		buckets: make(map[string]*bucket),
		lockout: newLockout(now),
	}
}

// Allow takes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= maxTracked {
			for k, idle := range rl.buckets {
				if now.Sub(idle.lastSeen) > clientIdle {
					delete(rl.buckets, k)
				}
			}
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// AuthFailure records a bad or missing token from ip and reports whether
// ip is now locked out.
func (rl *RateLimiter) AuthFailure(ip string) bool { return rl.lockout.fail(ip) }

// AuthSuccess forgets earlier failures from ip.
func (rl *RateLimiter) AuthSuccess(ip string) { rl.lockout.clear(ip) }

// IsAuthBlocked reports whether ip is locked out.
func (rl *RateLimiter) IsAuthBlocked(ip string) bool { return rl.lockout.blocked(ip) > 0 }

// AuthBlockRetryAfter returns the whole seconds until ip's lockout ends,
// rounded up, or 0 when ip is not blocked.
func (rl *RateLimiter) AuthBlockRetryAfter(ip string) int {
	return int(math.Ceil(rl.lockout.blocked(ip).Seconds()))
}

// Middleware rejects requests over the limit with 429. keyFunc picks the
// bucket; an empty key bypasses limiting.
func (rl *RateLimiter) Middleware(keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	retry := "1"
	if rps := rl.config.RequestsPerSecond; rps > 0 && rps < 1 {
		retry = strconv.Itoa(int(math.Ceil(1 / rps)))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := keyFunc(r); key != "" && !rl.Allow(key) {
				w.Header().Set("Retry-After", retry)
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of the request's remote address.
// Forwarding headers are ignored; the daemon is reached directly.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
