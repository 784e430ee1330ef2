//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"session-auth/internal/config"
	"session-auth/internal/database"
	"session-auth/internal/event"
	"session-auth/internal/handler"
	"session-auth/internal/metrics"
	"session-auth/internal/middleware"
	"session-auth/internal/repository"
	"session-auth/internal/router"
	"session-auth/internal/service"
	"session-auth/internal/session"
	"session-auth/internal/storage"
	"session-auth/internal/token"
	"session-auth/internal/util"
)

const testPassword = "s3cret!pw"

type stack struct {
	server *httptest.Server
	redis  *miniredis.Miniredis
}

type stackOption func(*config.Config)

func withAuthRateLimit(rpm int) stackOption {
	return func(cfg *config.Config) { cfg.AuthRateLimitRPM = rpm }
}

// newStack serves the full router over HTTP with sessions in an in-process
// Redis. Accounts live in PostgreSQL when TEST_DATABASE_URL is set.
func newStack(t *testing.T, opts ...stackOption) *stack {
	t.Helper()

	cfg := &config.Config{
		RequestTimeout:      10 * time.Second,
		StoreTimeout:        2 * time.Second,
		JWTSecret:           "integration-secret-0123456789abcdef",
		JWTIssuer:           "session-auth-integration",
		JWTAccessTTL:        2 * time.Hour,
		JWTRefreshTTL:       168 * time.Hour,
		LinkTokenTTL:        10 * time.Minute,
		CORSOrigins:         []string{"*"},
		RateLimitRPM:        1000,
		AuthRateLimitRPM:    1000,
		MediaBaseURL:        "/media",
		MaxProfileImageSize: 1 << 20,
		AuthExemptPaths: []string{
			"/api/v1/auth/join",
			"/api/v1/auth/login",
			"/api/v1/auth/force-login",
			"/api/v1/auth/refresh",
			"/api/v1/auth/validate-token",
			"/api/v1/oauth/*/login",
			"/api/v1/oauth/*/callback",
			"/api/v1/oauth/link",
			"/api/v1/users/*/profile",
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	store := session.NewRedisStore(client)

	var (
		accounts service.AccountStore = repository.NewMemoryUserRepository()
		audits   service.AuditStore   = repository.NewMemoryAuditRepository()
	)
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		db := openDatabase(t, url)
		accounts = repository.NewUserRepository(db.Pool, cfg.StoreTimeout)
		audits = repository.NewAuditRepository(db.Pool)
	}

	codec, err := token.NewCodec(cfg.JWTSecret, cfg.JWTIssuer)
	require.NoError(t, err)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	sessions := session.NewManager(store, cfg.StoreTimeout).WithObserver(collector)
	issuer, err := service.NewSessionIssuer(codec, sessions, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	require.NoError(t, err)
	uploader, err := storage.NewDiskUploader(t.TempDir(), cfg.MediaBaseURL)
	require.NoError(t, err)

	filter := util.NewWordFilter(nil)
	bus := event.NewBus()
	authService := service.NewAuthService(accounts, issuer, sessions, codec, filter, bus, collector, service.WithBcryptCost(bcrypt.MinCost))
	refreshService := service.NewRefreshService(accounts, issuer, sessions, codec, bus, collector)
	identityService := service.NewIdentityService(accounts, issuer, codec, cfg.LinkTokenTTL, filter, bus, collector)
	profileService := service.NewProfileService(accounts, issuer, uploader, filter, bus, cfg.MaxProfileImageSize)
	auditService := service.NewAuditService(audits, bus, cfg.StoreTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go auditService.Run(ctx)

	cookies := handler.CookieSettings{Secure: false, RefreshTTL: cfg.JWTRefreshTTL}
	gate := middleware.NewAuthMiddleware(codec, sessions, accounts, collector, cfg.AuthExemptPaths)

	server := httptest.NewServer(router.New(cfg, gate, router.Handlers{
		Auth:  handler.NewAuthHandler(authService, refreshService, cookies),
		OAuth: handler.NewOAuthHandler(identityService, cookies),
		User:  handler.NewUserHandler(profileService, cookies),
		Audit: handler.NewAuditHandler(auditService),
	}))
	t.Cleanup(server.Close)

	return &stack{server: server, redis: mr}
}

func openDatabase(t *testing.T, url string) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.New(ctx, url, 4, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(ctx))

	_, err = db.Pool.Exec(ctx, "TRUNCATE users, audit_entries, email_verifications RESTART IDENTITY")
	require.NoError(t, err)
	return db
}

// newBrowser returns a client that keeps cookies the way a browser would.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *stack) call(t *testing.T, client *http.Client, method string, path string, body any, accessToken string) (*http.Response, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var parsed apiResponse
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	}
	return resp, parsed
}

func accessTokenOf(t *testing.T, parsed apiResponse) string {
	t.Helper()

	var data struct {
		AccessToken string `json:"access_token"`
	}
	require.True(t, parsed.Success)
	require.NoError(t, json.Unmarshal(parsed.Data, &data))
	require.NotEmpty(t, data.AccessToken)
	return data.AccessToken
}

func (s *stack) join(t *testing.T, client *http.Client, email string) string {
	t.Helper()

	resp, parsed := s.call(t, client, http.MethodPost, "/api/v1/auth/join", map[string]string{
		"email": email, "password": testPassword, "nickname": "student1",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return accessTokenOf(t, parsed)
}
