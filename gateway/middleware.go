package gateway

import (
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cngnlend/config"
)

const requestIDHeader = "X-Request-Id"

// requestID stamps every request with a correlation identifier, honoring
// one supplied by the caller.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// authenticator verifies HMAC-signed bearer tokens when auth is enabled.
type authenticator struct {
	cfg    config.AuthConfig
	secret []byte
}

func newAuthenticator(cfg config.AuthConfig) *authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &authenticator{cfg: cfg, secret: []byte(cfg.HMACSecret)}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(a.cfg.ClockSkew),
		}
		if a.cfg.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
		}
		if a.cfg.Audience != "" {
			opts = append(opts, jwt.WithAudience(a.cfg.Audience))
		}
		_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		}, opts...)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// clientLimiter applies a per-remote-address token bucket.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

func newClientLimiter(cfg config.RateLimit) *clientLimiter {
	if cfg.RatePerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		clients: make(map[string]*rate.Limiter),
		rps:     rate.Limit(cfg.RatePerSecond),
		burst:   burst,
	}
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if idx := strings.LastIndex(key, ":"); idx > 0 {
			key = key[:idx]
		}
		l.mu.Lock()
		limiter, ok := l.clients[key]
		if !ok {
			limiter = rate.NewLimiter(l.rps, l.burst)
			l.clients[key] = limiter
		}
		l.mu.Unlock()
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
