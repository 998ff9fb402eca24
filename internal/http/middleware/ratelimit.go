package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdle   = 10 * time.Minute
	sweepEveryN   = 256
	headerLimit   = "X-RateLimit-Limit"
	headerRetry   = "Retry-After"
	userKeyPrefix = "u:"
)

// RateLimiter guarda um token bucket por chave (IP ou usuário).
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter cria o limitador com a taxa sustentada e a rajada permitida.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(reqPerSec),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// allow consome uma ficha da chave; quando negado devolve a espera sugerida.
func (l *RateLimiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	l.calls++
	if l.calls%sweepEveryN == 0 {
		for k, other := range l.buckets {
			if now.Sub(other.lastSeen) > limiterIdle {
				delete(l.buckets, k)
			}
		}
	}

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

func (l *RateLimiter) middleware(keyFunc func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := keyFunc(r)
			if !ok || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set(headerLimit, strconv.Itoa(l.burst))

			allowed, wait := l.allow(key)
			if !allowed {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set(headerRetry, strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "limite de requisições excedido", map[string]int{"retryAfter": secs})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPRateLimit limita rotas públicas pelo IP de origem.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limiter.middleware(func(r *http.Request) (string, bool) {
		return ClientIP(r), true
	})
}

// UserRateLimit limita rotas autenticadas pelo usuário do token.
func UserRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limiter.middleware(func(r *http.Request) (string, bool) {
		id, ok := GetIdentity(r.Context())
		if !ok {
			return "", false
		}
		return userKeyPrefix + strconv.FormatInt(id.UserID, 10), true
	})
}

// ClientIP devolve o IP de origem. X-Real-IP tem prioridade sobre o
// primeiro salto de X-Forwarded-For; sem cabeçalhos usa RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
