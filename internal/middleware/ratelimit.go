package middleware

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientIdleTTL is how long an unused per-client bucket is kept.
const clientIdleTTL = 10 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// clientBuckets hands out one token bucket per client key and drops buckets
// that have been idle for clientIdleTTL.
type clientBuckets struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	byKey map[string]*bucket
	swept time.Time
}

func (c *clientBuckets) allow(key string, now time.Time) bool {
	c.mu.Lock()
	if now.Sub(c.swept) > clientIdleTTL {
		for k, b := range c.byKey {
			if now.Sub(b.seen) > clientIdleTTL {
				delete(c.byKey, k)
			}
		}
		c.swept = now
	}
	b := c.byKey[key]
	if b == nil {
		b = &bucket{lim: rate.NewLimiter(c.every, c.burst)}
		c.byKey[key] = b
	}
	b.seen = now
	c.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// RateLimit admits limit requests per period for each client IP, bursting up
// to limit. Rejected requests get 429 with a Retry-After of one refill
// interval. A non-positive limit or period disables it.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 || per <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	buckets := &clientBuckets{
		every: rate.Every(per / time.Duration(limit)),
		burst: limit,
		byKey: make(map[string]*bucket),
		swept: time.Now(),
	}
	retryAfter := strconv.Itoa(int(math.Ceil(per.Seconds() / float64(limit))))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !buckets.allow(ClientIP(r), time.Now()) {
				w.Header().Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP prefers the first parseable X-Forwarded-For entry, then the host
// part of RemoteAddr. RemoteAddr is returned as is when neither parses.
func ClientIP(r *http.Request) string {
	for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if addr, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
			return addr.String()
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.String()
	}
	return r.RemoteAddr
}
