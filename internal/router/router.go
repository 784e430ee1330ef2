package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"session-auth/internal/config"
	"session-auth/internal/handler"
	"session-auth/internal/middleware"
	"session-auth/internal/model"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	OAuth *handler.OAuthHandler
	User  *handler.UserHandler
	Audit *handler.AuditHandler
	// Verification serves the e-mail code routes; nil leaves them unrouted.
	Verification *handler.VerificationHandler
	// Metrics serves the Prometheus scrape endpoint; nil disables it.
	Metrics http.Handler
	// Media serves uploaded profile images under cfg.MediaBaseURL when that
	// is a local path; nil when images live elsewhere.
	Media http.Handler
	// Checks are probed by /health, keyed by dependency name.
	Checks map[string]HealthCheck
}

type HealthCheck func(ctx context.Context) error

const healthProbeTimeout = 2 * time.Second

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// health answers 503 when any dependency probe fails so a load balancer
// stops routing to an instance that would only return UPSTREAM_UNAVAILABLE.
func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()

		report := healthReport{Status: "ok", Checks: map[string]string{}}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("health check failed", "dependency", name, "error", err)
				report.Checks[name] = "unavailable"
				report.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			report.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(model.APIResponse{Success: status == http.StatusOK, Data: report})
	}
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, handlers Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.ClientIP(cfg.TrustedProxies))
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", health(handlers.Checks))
	if handlers.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", handlers.Metrics)
	}
	if handlers.Media != nil && strings.HasPrefix(cfg.MediaBaseURL, "/") {
		prefix := strings.TrimRight(cfg.MediaBaseURL, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, handlers.Media))
	}

	requireAuth := authMiddleware.RequireAuth

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(authMiddleware.Authenticate)

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/join", handlers.Auth.Join)
			auth.Post("/login", handlers.Auth.Login)
			auth.Post("/force-login", handlers.Auth.ForceLogin)
			auth.Post("/refresh", handlers.Auth.Refresh)
			auth.Post("/validate-token", handlers.Auth.ValidateToken)
			auth.With(requireAuth).Delete("/logout", handlers.Auth.Logout)
			auth.With(requireAuth).Get("/me", handlers.Auth.Me)
			if handlers.Verification != nil {
				auth.Post("/email/send-code", handlers.Verification.SendCode)
				auth.Post("/email/verify-code", handlers.Verification.VerifyCode)
			}
		})

		api.Route("/oauth", func(oauth chi.Router) {
			oauth.Get("/{provider}/login", handlers.OAuth.Login)
			oauth.Get("/{provider}/callback", handlers.OAuth.Callback)
			oauth.Post("/link", handlers.OAuth.Link)
		})

		api.Route("/users", func(users chi.Router) {
			users.Get("/{id}/profile", handlers.User.Profile)
			users.With(requireAuth).Patch("/me/nickname", handlers.User.UpdateNickname)
			users.With(requireAuth).Put("/me/profile-image", handlers.User.UpdateProfileImage)
			users.With(requireAuth).Put("/me/password", handlers.Auth.ChangePassword)
			users.With(requireAuth).Delete("/me", handlers.User.DeleteMe)
		})

		api.With(requireAuth, authMiddleware.RequireRoles(model.RoleAdmin)).Get("/admin/audit", handlers.Audit.List)
	})

	return r
}
