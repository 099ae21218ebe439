package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/inkbook/inkbook/internal/config"
	"github.com/inkbook/inkbook/internal/domain/booking"
	"github.com/inkbook/inkbook/internal/domain/identity"
	"github.com/inkbook/inkbook/internal/platform/apperr"
	"github.com/inkbook/inkbook/internal/platform/auth"
	"github.com/inkbook/inkbook/internal/platform/db"
	"github.com/inkbook/inkbook/internal/platform/events"
	"github.com/inkbook/inkbook/internal/platform/lock"
	"github.com/inkbook/inkbook/internal/platform/middleware"
	"github.com/inkbook/inkbook/internal/platform/telemetry"
)

const (
	shutdownTimeout = 15 * time.Second
	maxBodySize     = "64K"
)

// newLocker builds the per-provider serializer selected by LOCK_BACKEND.
// The returned func releases any client it opened.
func newLocker(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (lock.Serializer, func(), error) {
	noop := func() {}
	switch cfg.LockBackend {
	case config.LockPostgres:
		return db.NewAdvisoryLocker(pool), noop, nil
	case config.LockMemory:
		return lock.NewMemoryLocker(), noop, nil
	case config.LockRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		return lock.NewRedisLocker(rdb, "inkbook:lock", cfg.LockTTL), func() { _ = rdb.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

type routes struct {
	health   db.Pinger
	identity *identity.Handler
	booking  *booking.Handler
	authn    *auth.Authenticator
	limiter  *middleware.RateLimiter
}

// newRouter assembles the echo instance: global middleware, health checks,
// public auth endpoints and the authenticated API.
func newRouter(cfg *config.Config, logger zerolog.Logger, r routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit(maxBodySize))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(r.health))

	timeout := middleware.RequestTimeout(cfg.RequestTimeout)
	public := e.Group("/api/v1", r.limiter.Middleware(), timeout)
	api := e.Group("/api/v1", r.limiter.Middleware(), timeout, r.authn.Middleware())

	r.identity.RegisterRoutes(public, api)
	r.booking.RegisterRoutes(api)

	return e
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.UsesDevSecret() {
		logger.Warn().Msg("JWT_SECRET is unset; signing tokens with the development secret")
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "inkbook-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSamplingRatio,
	})
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	locker, closeLocker, err := newLocker(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer closeLocker()
	logger.Info().Str("backend", cfg.LockBackend).Msg("booking lock ready")

	publisher := events.NewKafkaPublisher(events.SplitBrokers(cfg.KafkaBrokers), cfg.KafkaTopicPrefix)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("event publisher close failed")
		}
	}()

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	identitySvc := identity.NewService(
		identity.NewUserRepoPG(pool),
		auth.NewPasswordHasher(cfg.BcryptCost),
		tokens,
		identity.WithMinAge(cfg.MinSignupAge),
		identity.WithLogger(logger.With().Str("component", "identity").Logger()),
	)
	bookingSvc := booking.NewService(
		booking.NewAppointmentRepoPG(pool),
		identitySvc,
		locker,
		booking.WithPublisher(publisher),
		booking.WithLogger(logger.With().Str("component", "booking").Logger()),
	)

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	go limiter.RunSweeper(ctx)

	e := newRouter(cfg, logger, routes{
		health:   pool,
		identity: identity.NewHandler(identitySvc),
		booking:  booking.NewHandler(bookingSvc),
		authn:    auth.NewAuthenticator(tokens, identitySvc),
		limiter:  limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "inkbook-server"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
