package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// minSecretLength is the shortest HS512 key accepted, in bytes.
const minSecretLength = 32

var defaultExemptPaths = []string{
	"/health",
	"/metrics",
	"/api/v1/auth/join",
	"/api/v1/auth/login",
	"/api/v1/auth/force-login",
	"/api/v1/auth/refresh",
	"/api/v1/auth/validate-token",
	"/api/v1/auth/email/send-code",
	"/api/v1/auth/email/verify-code",
	"/api/v1/oauth/*/login",
	"/api/v1/oauth/*/callback",
	"/api/v1/oauth/link",
	"/api/v1/users/*/profile",
}

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StoreTimeout  time.Duration

	JWTSecret     string
	JWTIssuer     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	LinkTokenTTL  time.Duration
	CookieSecure  bool

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	AuthExemptPaths  []string
	// TrustedProxies may set X-Forwarded-For and X-Real-IP; other peers are
	// keyed by their own address.
	TrustedProxies []netip.Prefix

	NaverClientID     string
	NaverClientSecret string
	NaverRedirectURL  string

	MediaRoot           string
	MediaBaseURL        string
	MaxProfileImageSize int64
	BadWords            []string

	MailFrom                 string
	EmailCodeTTL             time.Duration
	RequireEmailVerification bool

	EventBuffer int
	LogLevel    slog.Level
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		StoreTimeout:  getDuration("STORE_TIMEOUT", 2*time.Second),

		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:     getEnv("JWT_ISSUER", "session-auth"),
		JWTAccessTTL:  getDuration("JWT_ACCESS_TTL", 2*time.Hour),
		JWTRefreshTTL: getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		LinkTokenTTL:  getDuration("LINK_TOKEN_TTL", 10*time.Minute),
		CookieSecure:  getBool("COOKIE_SECURE", true),

		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),
		AuthExemptPaths:  getCSV("AUTH_EXEMPT_PATHS", defaultExemptPaths),

		NaverClientID:     strings.TrimSpace(os.Getenv("NAVER_CLIENT_ID")),
		NaverClientSecret: strings.TrimSpace(os.Getenv("NAVER_CLIENT_SECRET")),
		NaverRedirectURL:  strings.TrimSpace(os.Getenv("NAVER_REDIRECT_URL")),

		MediaRoot:           getEnv("MEDIA_ROOT", "./state/media"),
		MediaBaseURL:        getEnv("MEDIA_BASE_URL", "/media"),
		MaxProfileImageSize: getInt64("MAX_PROFILE_IMAGE_SIZE", 1<<20),
		BadWords:            splitCSV(os.Getenv("BAD_WORDS")),

		MailFrom:                 getEnv("MAIL_FROM", "no-reply@localhost"),
		EmailCodeTTL:             getDuration("EMAIL_CODE_TTL", 5*time.Minute),
		RequireEmailVerification: getBool("REQUIRE_EMAIL_VERIFICATION", false),

		EventBuffer: getInt("EVENT_BUFFER", 100),
		LogLevel:    getLevel("LOG_LEVEL", slog.LevelInfo),
	}

	proxies, err := parsePrefixes(splitCSV(os.Getenv("TRUSTED_PROXIES")))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}

	if c.JWTRefreshTTL <= c.JWTAccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL (%s) must be longer than JWT_ACCESS_TTL (%s)", c.JWTRefreshTTL, c.JWTAccessTTL)
	}

	if c.LinkTokenTTL <= 0 {
		return fmt.Errorf("LINK_TOKEN_TTL must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}

	if c.StoreTimeout >= c.RequestTimeout {
		return fmt.Errorf("STORE_TIMEOUT must be shorter than REQUEST_TIMEOUT")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are inconsistent (%d/%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.MaxProfileImageSize <= 0 {
		return fmt.Errorf("MAX_PROFILE_IMAGE_SIZE must be positive")
	}

	if strings.TrimSpace(c.MediaRoot) == "" {
		return fmt.Errorf("MEDIA_ROOT cannot be empty")
	}

	if c.EmailCodeTTL <= 0 {
		return fmt.Errorf("EMAIL_CODE_TTL must be positive")
	}

	if c.NaverEnabled() && c.NaverRedirectURL == "" {
		return fmt.Errorf("NAVER_REDIRECT_URL is required when NAVER_CLIENT_ID is set")
	}

	return nil
}

// NaverEnabled reports whether Naver credentials are configured.
func (c *Config) NaverEnabled() bool {
	return c.NaverClientID != "" && c.NaverClientSecret != ""
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getLevel(key string, fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}

	return level
}

func getCSV(key string, fallback []string) []string {
	values := splitCSV(os.Getenv(key))
	if len(values) == 0 {
		return append([]string(nil), fallback...)
	}

	return values
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}

// parsePrefixes accepts CIDR ranges and bare addresses.
func parsePrefixes(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, value := range values {
		if addr, err := netip.ParseAddr(value); err == nil {
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return nil, fmt.Errorf("invalid address or range %q", value)
		}
		out = append(out, prefix.Masked())
	}

	return out, nil
}
