package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"session-auth/internal/model"
)

const (
	defaultAuthRPM  = 10
	clientIdleAfter = 10 * time.Minute
	sweepEvery      = time.Minute
)

type clientLimiter struct {
	general  *rate.Limiter
	auth     *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware keeps one limiter pair per client IP, as resolved by
// ClientIP. Credential and
// OAuth routes draw from the stricter auth limiter; a non-positive general
// limit leaves every other route unlimited.
type RateLimitMiddleware struct {
	generalRPM int
	authRPM    int
	now        func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func NewRateLimitMiddleware(generalRPM int, authRPM int) *RateLimitMiddleware {
	if authRPM <= 0 {
		authRPM = defaultAuthRPM
	}

	return &RateLimitMiddleware{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		now:        time.Now,
		clients:    map[string]*clientLimiter{},
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestPath := strings.ToLower(r.URL.Path)
		if requestPath == "/health" || requestPath == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		limiter := m.limiterFor(clientIPOf(r))
		target := limiter.general
		if isCredentialPath(requestPath) {
			target = limiter.auth
		}

		if target != nil {
			if wait, ok := m.admit(target); !ok {
				writeRateLimited(w, wait)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// admit takes a token when one is available. Otherwise it reports how long
// until the next token, without consuming it.
func (m *RateLimitMiddleware) admit(limiter *rate.Limiter) (time.Duration, bool) {
	now := m.now()
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return time.Minute, false
	}
	wait := reservation.DelayFrom(now)
	if wait == 0 {
		return 0, true
	}
	reservation.CancelAt(now)
	return wait, false
}

func writeRateLimited(w http.ResponseWriter, wait time.Duration) {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeFailure(w, http.StatusTooManyRequests, &model.APIError{
		Code:    "RATE_LIMITED",
		Message: "Too many requests",
	})
}

func (m *RateLimitMiddleware) limiterFor(clientIP string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= sweepEvery {
		m.sweepLocked(now)
	}

	if limiter, exists := m.clients[clientIP]; exists {
		limiter.lastSeen = now
		return limiter
	}

	created := &clientLimiter{
		auth:     rate.NewLimiter(perMinute(m.authRPM), m.authRPM),
		lastSeen: now,
	}
	if m.generalRPM > 0 {
		created.general = rate.NewLimiter(perMinute(m.generalRPM), m.generalRPM)
	}
	m.clients[clientIP] = created
	return created
}

func (m *RateLimitMiddleware) sweepLocked(now time.Time) {
	m.lastSweep = now
	cutoff := now.Add(-clientIdleAfter)
	for ip, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}

func perMinute(rpm int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(rpm))
}

func isCredentialPath(requestPath string) bool {
	return strings.HasPrefix(requestPath, "/api/v1/auth") || strings.HasPrefix(requestPath, "/api/v1/oauth")
}
