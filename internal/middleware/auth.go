package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"session-auth/internal/metrics"
	"session-auth/internal/model"
	"session-auth/internal/session"
	"session-auth/internal/token"
	"session-auth/pkg/apierror"
)

type tokenDecoder interface {
	Decode(tokenString string) (token.Claims, error)
}

type sessionLookup interface {
	Lookup(ctx context.Context, userID int64, kind session.Kind) (string, bool, error)
}

type statusReader interface {
	FindStatusByID(ctx context.Context, id int64) (model.Status, error)
}

type contextKey string

const (
	principalContextKey contextKey = "auth_principal"
	rawTokenContextKey  contextKey = "auth_raw_token"
)

// AuthMiddleware is the authentication gate. A request without an
// Authorization header passes through anonymously; RequireAuth decides
// whether a route needs a principal.
type AuthMiddleware struct {
	codec    tokenDecoder
	sessions sessionLookup
	accounts statusReader
	metrics  metrics.Recorder
	exempt   []string
}

func NewAuthMiddleware(codec tokenDecoder, sessions sessionLookup, accounts statusReader, recorder metrics.Recorder, exemptPatterns []string) *AuthMiddleware {
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	patterns := make([]string, 0, len(exemptPatterns))
	for _, pattern := range exemptPatterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if _, err := path.Match(pattern, "/"); err != nil {
			slog.Warn("ignoring invalid auth exempt pattern", "pattern", pattern, "error", err)
			continue
		}
		patterns = append(patterns, pattern)
	}

	return &AuthMiddleware{codec: codec, sessions: sessions, accounts: accounts, metrics: recorder, exempt: patterns}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isExempt(r.URL.Path) {
			m.metrics.RecordGateOutcome("exempt")
			next.ServeHTTP(w, r)
			return
		}

		raw := bearerToken(r.Header.Get("Authorization"))
		if raw == "" {
			m.metrics.RecordGateOutcome("anonymous")
			next.ServeHTTP(w, r)
			return
		}

		principal, err := m.verify(r.Context(), raw)
		m.metrics.RecordGateOutcome(metrics.Outcome(err))
		if err != nil {
			if errors.Is(err, model.ErrTokenMalformed) {
				slog.Warn("suspicious token rejected",
					"ip", clientIPOf(r),
					"path", r.URL.Path,
					"user_agent", r.UserAgent(),
				)
			}
			writeError(w, err)
			return
		}

		noteUser(r.Context(), principal.UserID)
		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		ctx = context.WithValue(ctx, rawTokenContextKey, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) verify(ctx context.Context, raw string) (model.Principal, error) {
	claims, err := m.codec.Decode(raw)
	if err != nil {
		return model.Principal{}, err
	}
	if claims.Scope != "" {
		return model.Principal{}, model.ErrTokenMalformed.WithDetails("not a session token")
	}

	bound, found, err := m.sessions.Lookup(ctx, claims.UserID, session.KindAccess)
	if err != nil {
		return model.Principal{}, err
	}
	if !found {
		return model.Principal{}, model.ErrTokenExpired.WithDetails("session ended")
	}
	if subtle.ConstantTimeCompare([]byte(bound), []byte(raw)) != 1 {
		return model.Principal{}, model.ErrSessionSuperseded
	}

	status, err := m.accounts.FindStatusByID(ctx, claims.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Principal{}, model.ErrAccountInactive.WithDetails("account no longer exists")
	}
	if err != nil {
		return model.Principal{}, err
	}
	if status != model.StatusActive {
		return model.Principal{}, model.ErrAccountInactive.WithDetails(string(status))
	}

	return claims.Principal(), nil
}

func (m *AuthMiddleware) isExempt(requestPath string) bool {
	for _, pattern := range m.exempt {
		if ok, _ := path.Match(pattern, requestPath); ok {
			return true
		}
	}
	return false
}

// RequireAuth rejects anonymous requests.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			writeError(w, model.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...model.Role) func(http.Handler) http.Handler {
	roleSet := map[model.Role]struct{}{}
	for _, role := range allowedRoles {
		roleSet[model.Role(strings.ToUpper(strings.TrimSpace(string(role))))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, model.ErrUnauthorized)
				return
			}

			if _, exists := roleSet[principal.Role]; !exists {
				writeError(w, model.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	return principal, ok
}

// RawTokenFromContext returns the access token the gate accepted.
func RawTokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(rawTokenContextKey).(string)
	return raw, ok && raw != ""
}

// WithPrincipal is used by tests that exercise handlers behind the gate.
func WithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// bearerToken strips an optional case-insensitive "Bearer " prefix.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// BearerToken is the exported form used by the refresh handler.
func BearerToken(header string) string {
	return bearerToken(header)
}

func writeError(w http.ResponseWriter, err error) {
	body := &model.APIError{Code: "INTERNAL_ERROR", Message: "Unexpected server error"}
	status := http.StatusInternalServerError

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else {
		slog.Error("unhandled error in auth gate", "error", err.Error())
	}

	if errors.Is(err, model.ErrUpstreamUnavailable) {
		w.Header().Set("Retry-After", "1")
		body.Details = ""
	}
	writeFailure(w, status, body)
}
