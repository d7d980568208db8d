package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateErr struct {
	Error string `json:"error"`
}

// idleTTL is how long a client bucket may go unused before it is dropped.
const idleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter hands out one token bucket per client IP. Buckets idle for
// longer than idleTTL are swept at most once per idleTTL.
type ClientLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	clients   map[string]*clientBucket
	lastSweep time.Time
	now       func() time.Time
}

// NewClientLimiter returns nil when rps is not positive, which disables
// rate limiting.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (c *ClientLimiter) limiter(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= idleTTL {
		for k, b := range c.clients {
			if now.Sub(b.lastSeen) >= idleTTL {
				delete(c.clients, k)
			}
		}
		c.lastSweep = now
	}

	b, ok := c.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (c *ClientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

func RateLimitMiddleware(c *ClientLimiter) func(http.Handler) http.Handler {
	if c == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := c.limiter(hostOnly(r.RemoteAddr))
			if l.Allow() {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			retry := 1
			if l.Limit() > 0 && l.Limit() < 1 {
				retry = int(1.0/float64(l.Limit()) + 0.5)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rateErr{Error: "too_many_requests"})
		})
	}
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
