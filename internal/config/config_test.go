package config

import (
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("AUTH_EXEMPT_PATHS", "")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.JWTAccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, 10*time.Minute, cfg.LinkTokenTTL)
	assert.True(t, cfg.CookieSecure)
	assert.Contains(t, cfg.AuthExemptPaths, "/api/v1/auth/refresh")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.NaverEnabled())
	assert.Equal(t, 5*time.Minute, cfg.EmailCodeTTL)
	assert.False(t, cfg.RequireEmailVerification)
	assert.Empty(t, cfg.TrustedProxies)
	assert.Contains(t, cfg.AuthExemptPaths, "/api/v1/auth/email/send-code")
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
	}, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "not-a-range")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ACCESS_TTL", "30m")
	t.Setenv("JWT_REFRESH_TTL", "24h")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("AUTH_EXEMPT_PATHS", "/health, /api/v1/auth/*")
	t.Setenv("BAD_WORDS", "foo, bar")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.JWTAccessTTL)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, []string{"/health", "/api/v1/auth/*"}, cfg.AuthExemptPaths)
	assert.Equal(t, []string{"foo", "bar"}, cfg.BadWords)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ServerPort:          "8080",
			RequestTimeout:      30 * time.Second,
			StoreTimeout:        2 * time.Second,
			DBMaxConns:          10,
			DBMinConns:          2,
			JWTSecret:           testSecret,
			JWTAccessTTL:        2 * time.Hour,
			JWTRefreshTTL:       168 * time.Hour,
			LinkTokenTTL:        10 * time.Minute,
			MediaRoot:           "./media",
			MaxProfileImageSize: 1 << 20,
			EmailCodeTTL:        5 * time.Minute,
		}
	}

	base := valid()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is required"},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "at least 32 bytes"},
		{"refresh not longer than access", func(c *Config) { c.JWTRefreshTTL = c.JWTAccessTTL }, "JWT_REFRESH_TTL"},
		{"zero store timeout", func(c *Config) { c.StoreTimeout = 0 }, "STORE_TIMEOUT must be positive"},
		{"store timeout exceeds request", func(c *Config) { c.StoreTimeout = time.Minute }, "shorter than REQUEST_TIMEOUT"},
		{"zero email code ttl", func(c *Config) { c.EmailCodeTTL = 0 }, "EMAIL_CODE_TTL"},
		{"naver without redirect", func(c *Config) { c.NaverClientID, c.NaverClientSecret = "id", "secret" }, "NAVER_REDIRECT_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
