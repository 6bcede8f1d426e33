package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/clinicrecords/records/internal/config"
	"github.com/clinicrecords/records/internal/domain/clinic"
	"github.com/clinicrecords/records/internal/platform/apperr"
	"github.com/clinicrecords/records/internal/platform/auth"
	"github.com/clinicrecords/records/internal/platform/db"
	"github.com/clinicrecords/records/internal/platform/middleware"
	"github.com/clinicrecords/records/internal/platform/webhook"
	"github.com/clinicrecords/records/internal/platform/websocket"
)

const version = "0.1.0"

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		Schema:   cfg.DBSchema,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

// newClinicService wires the Postgres repositories. publisher may be nil.
func newClinicService(pool *pgxpool.Pool, publisher websocket.EventPublisher, logger zerolog.Logger) *clinic.Service {
	opts := []clinic.Option{clinic.WithLogger(logger)}
	if publisher != nil {
		opts = append(opts, clinic.WithEventPublisher(publisher))
	}
	return clinic.NewService(
		clinic.NewUserRepo(pool),
		clinic.NewDoctorRepo(pool),
		clinic.NewPatientRepo(pool),
		clinic.NewRecordRepo(pool),
		db.NewTxManager(pool),
		opts...,
	)
}

// resolveSigningKey returns the configured JWT key, or a random 32-byte key
// when none is set. The second return value is true for a random key.
func resolveSigningKey(configured string) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	svc      *clinic.Service
	hub      *websocket.Hub
	issuer   *auth.TokenIssuer
	registry *prometheus.Registry
	dbHealth echo.HandlerFunc
}

func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(a.logger)

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.NewHTTPMetrics(a.registry).Middleware())
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS:           !a.cfg.IsDev(),
		AllowedOrigins: a.cfg.CORSOrigins,
	}))
	e.Use(middleware.Sanitize(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	jwtCfg := a.issuer.Config()
	jwtCfg.Skipper = auth.AuthSkipper
	if a.cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.Audit(a.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if a.dbHealth != nil {
		e.GET("/health/db", a.dbHealth)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	websocket.NewWebSocketHandler(a.hub, a.cfg.CORSOrigins, a.logger).RegisterRoutes(e.Group(""))

	api := e.Group("/api", middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))
	auth.NewHandler(a.svc, a.issuer, a.cfg.IsDev()).RegisterRoutes(api)
	clinic.NewHandler(a.svc).RegisterRoutes(api)

	return e
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	applied, err := db.NewMigrator(pool, migrationSource(cfg.MigrationsDir)).Up(ctx, cfg.DBSchema)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if applied > 0 {
		logger.Info().Int("count", applied).Msg("applied migrations")
	}

	key, random, err := resolveSigningKey(cfg.JWTSigningKey)
	if err != nil {
		return err
	}
	if random {
		logger.Warn().Msg("JWT_SIGNING_KEY not set; using a random key, tokens will not survive a restart")
	}
	issuer, err := auth.NewTokenIssuer(key, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(logger)
	publishers := websocket.Publishers{hub}
	if len(cfg.WebhookURLs) > 0 {
		endpoints := make([]webhook.Endpoint, 0, len(cfg.WebhookURLs))
		for _, u := range cfg.WebhookURLs {
			endpoints = append(endpoints, webhook.Endpoint{URL: u, Secret: cfg.WebhookSecret, Events: cfg.WebhookEvents})
		}
		dispatcher, err := webhook.NewDispatcher(endpoints, logger)
		if err != nil {
			return err
		}
		workerCtx, stopWorker := context.WithCancel(context.Background())
		defer func() {
			stopWorker()
			dispatcher.Wait()
		}()
		dispatcher.Start(workerCtx)
		publishers = append(publishers, dispatcher)
		logger.Info().Int("endpoints", len(endpoints)).Msg("webhook delivery enabled")
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		svc:      newClinicService(pool, publishers, logger),
		hub:      hub,
		issuer:   issuer,
		registry: newRegistry(),
		dbHealth: db.HealthHandler(pool),
	}
	e := a.router()

	logger.Info().Str("auth_mode", cfg.ResolvedAuthMode()).Str("env", cfg.Env).Msg("auth configured")

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
