package v1

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const ctxKeyUserID ctxKey = "authenticatedUserID"

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[len("Bearer "):])
	return tok, tok != ""
}

// authenticate enforces Authorization: Bearer <jwt> and stores the caller's
// user id in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := parseBearerToken(r)
		if !ok {
			writeErr(w, http.StatusUnauthorized, "missing bearer token", "unauthorized")
			return
		}
		id, err := s.Tokens.Verify(tok)
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "invalid token", "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userID returns the authenticated caller. Only valid behind authenticate.
func userID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(ctxKeyUserID).(uuid.UUID)
	return id
}

// limiterIdle is how long an IP's bucket survives without traffic.
const limiterIdle = 10 * time.Minute

type ipLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*client
	lastGC  time.Time
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastGC) > limiterIdle {
		for k, c := range l.clients {
			if now.Sub(c.seen) > limiterIdle {
				delete(l.clients, k)
			}
		}
		l.lastGC = now
	}
	c, ok := l.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

// rateLimit throttles requests per client IP with a token bucket. A
// non-positive rps disables limiting.
func rateLimit(rps float64) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}
	l := &ipLimiter{rps: rate.Limit(rps), burst: burst, clients: make(map[string]*client)}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}
			if !l.allow(ip, time.Now()) {
				w.Header().Set("Retry-After", "1")
				writeErr(w, http.StatusTooManyRequests, "too many requests", "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
