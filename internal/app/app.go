package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"session-auth/internal/config"
	"session-auth/internal/database"
	"session-auth/internal/event"
	"session-auth/internal/handler"
	"session-auth/internal/mail"
	"session-auth/internal/metrics"
	"session-auth/internal/middleware"
	"session-auth/internal/oauth"
	"session-auth/internal/repository"
	"session-auth/internal/router"
	"session-auth/internal/service"
	"session-auth/internal/session"
	"session-auth/internal/storage"
	"session-auth/internal/token"
	"session-auth/internal/util"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	var cleanups []func()
	fail := func(err error) (*App, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		return nil, err
	}

	var (
		accounts      service.AccountStore
		audits        service.AuditStore
		verifications service.VerificationStore
	)
	checks := map[string]router.HealthCheck{}
	if cfg.DatabaseURL != "" {
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		cleanups = append(cleanups, db.Close)

		if err := db.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("failed to ensure database schema: %w", err))
		}

		checks["database"] = db.Health
		accounts = repository.NewUserRepository(db.Pool, cfg.StoreTimeout)
		audits = repository.NewAuditRepository(db.Pool)
		verifications = repository.NewVerificationRepository(db.Pool, cfg.StoreTimeout)
		slog.Info("database ready")
	} else {
		slog.Warn("DATABASE_URL not set; accounts and audit entries are kept in memory")
		accounts = repository.NewMemoryUserRepository()
		audits = repository.NewMemoryAuditRepository()
		verifications = repository.NewMemoryVerificationRepository()
	}

	var store session.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.StoreTimeout,
			ReadTimeout:  cfg.StoreTimeout,
			WriteTimeout: cfg.StoreTimeout,
		})
		redisStore := session.NewRedisStore(client)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		err := redisStore.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = redisStore.Close()
			return fail(fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err))
		}
		cleanups = append(cleanups, func() { _ = redisStore.Close() })
		checks["sessions"] = redisStore.Ping
		store = redisStore
		slog.Info("session store ready", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		slog.Warn("REDIS_ADDR not set; sessions are kept in memory and lost on restart")
		store = session.NewMemoryStore()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	codec, err := token.NewCodec(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize token codec: %w", err))
	}
	sessions := session.NewManager(store, cfg.StoreTimeout).WithObserver(collector)
	issuer, err := service.NewSessionIssuer(codec, sessions, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize session issuer: %w", err))
	}

	uploader, err := storage.NewDiskUploader(cfg.MediaRoot, cfg.MediaBaseURL)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize media storage: %w", err))
	}

	var providers []service.OAuthProvider
	if cfg.NaverEnabled() {
		naver, err := oauth.NewNaver(oauth.NaverConfig{
			ClientID:     cfg.NaverClientID,
			ClientSecret: cfg.NaverClientSecret,
			RedirectURL:  cfg.NaverRedirectURL,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to initialize naver oauth: %w", err))
		}
		providers = append(providers, naver)
	} else {
		slog.Warn("naver oauth is not configured; oauth routes answer UNSUPPORTED_PROVIDER")
	}

	bus := event.NewBus().WithBuffer(cfg.EventBuffer)
	metrics.WatchDroppedEvents(registry, bus.Dropped)
	filter := util.NewWordFilter(cfg.BadWords)

	mailer := mail.NewLogMailer(slog.Default(), cfg.MailFrom)
	verificationService := service.NewEmailVerificationService(verifications, accounts, mailer, bus, cfg.EmailCodeTTL)
	profileService := service.NewProfileService(accounts, issuer, uploader, filter, bus, cfg.MaxProfileImageSize)

	authOptions := []service.AuthOption{service.WithProfileImages(profileService)}
	if cfg.RequireEmailVerification {
		authOptions = append(authOptions, service.WithEmailVerification(verificationService))
	}
	authService := service.NewAuthService(accounts, issuer, sessions, codec, filter, bus, collector, authOptions...)
	refreshService := service.NewRefreshService(accounts, issuer, sessions, codec, bus, collector)
	identityService := service.NewIdentityService(accounts, issuer, codec, cfg.LinkTokenTTL, filter, bus, collector, providers...)
	auditService := service.NewAuditService(audits, bus, cfg.StoreTimeout)

	auditCtx, stopAudit := context.WithCancel(context.Background())
	go auditService.Run(auditCtx)
	cleanups = append(cleanups, stopAudit)

	cookies := handler.CookieSettings{Secure: cfg.CookieSecure, RefreshTTL: cfg.JWTRefreshTTL}
	authMiddleware := middleware.NewAuthMiddleware(codec, sessions, accounts, collector, cfg.AuthExemptPaths)

	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:         handler.NewAuthHandler(authService, refreshService, cookies),
		OAuth:        handler.NewOAuthHandler(identityService, cookies),
		User:         handler.NewUserHandler(profileService, cookies),
		Audit:        handler.NewAuditHandler(auditService),
		Verification: handler.NewVerificationHandler(verificationService),
		Metrics:      metrics.Handler(registry),
		Media:        uploader.Handler(),
		Checks:       checks,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		ReadTimeout:       cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{server: server, cleanupFuncs: cleanups}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	// Stores close only after in-flight requests have drained.
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
