package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
)

const clientIdleTimeout = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter throttles requests per client IP with a token bucket per client.
type ClientRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	perMinute int
	trusted   []netip.Prefix
	now       func() time.Time
}

// ClientLimiterOption configures a ClientRateLimiter.
type ClientLimiterOption func(*ClientRateLimiter)

// WithTrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP headers are believed.
func WithTrustedProxies(prefixes []netip.Prefix) ClientLimiterOption {
	return func(l *ClientRateLimiter) {
		l.trusted = prefixes
	}
}

func NewClientRateLimiter(perMinute int, opts ...ClientLimiterOption) *ClientRateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	l := &ClientRateLimiter{
		clients:   make(map[string]*client),
		perMinute: perMinute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether the client identified by key may make another request now.
func (l *ClientRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.perMinute)/60, l.perMinute)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Sweep forgets clients idle for longer than clientIdleTimeout and returns how many were dropped.
func (l *ClientRateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-clientIdleTimeout)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Middleware rejects clients over their budget with 429. Health checks are never throttled.
func (l *ClientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}
		if !l.Allow(l.clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeResult(w, http.StatusTooManyRequests, failure(domain.ErrKindForbidden, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP identifies the caller. Forwarding headers count only when the direct peer is a trusted
// proxy; X-Forwarded-For is then walked right to left and the first untrusted hop wins.
func (l *ClientRateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !l.isTrusted(peer) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !l.isTrusted(hop.String()) {
				return hop.Unmap().String()
			}
		}
	}
	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer
}

func (l *ClientRateLimiter) isTrusted(host string) bool {
	if len(l.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
