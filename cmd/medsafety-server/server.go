package main

import (
	"context"
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
	"github.com/rs/zerolog"

	"github.com/ehr/medsafety/internal/config"
	"github.com/ehr/medsafety/internal/domain/administration"
	"github.com/ehr/medsafety/internal/domain/clinical"
	"github.com/ehr/medsafety/internal/domain/interaction"
	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/domain/override"
	"github.com/ehr/medsafety/internal/platform/audit"
	"github.com/ehr/medsafety/internal/platform/auth"
	"github.com/ehr/medsafety/internal/platform/db"
	"github.com/ehr/medsafety/internal/platform/metrics"
	"github.com/ehr/medsafety/internal/platform/middleware"
	"github.com/ehr/medsafety/internal/platform/tracing"
)

const serviceName = "medsafety"

// authMiddleware picks the authentication layer for the resolved auth mode.
func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtMW := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware(jwtMW)
	}
	return jwtMW
}

// buildAuditSink fans audit events out to the log, the audit table and,
// when brokers are configured, Kafka behind a circuit breaker. The returned
// func releases the Kafka client.
func buildAuditSink(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (audit.Sink, func(context.Context), error) {
	sinks := audit.MultiSink{audit.LogSink{Logger: logger.With().Str("component", "audit").Logger()}}
	if pool != nil {
		sinks = append(sinks, audit.NewPGSink(pool))
	}
	closeFn := func(context.Context) {}
	if len(cfg.AuditKafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaSink(cfg.AuditKafkaBrokers, cfg.AuditKafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, audit.NewBreakerSink(kafka, audit.BreakerConfig{
			Name:    "audit-kafka",
			Timeout: cfg.AuditBreakerTimeout,
		}, logger))
		closeFn = func(ctx context.Context) { _ = kafka.Close(ctx) }
	}
	return sinks, closeFn, nil
}

// newMetrics returns nil when metrics are disabled; every recorder
// accepts a nil *metrics.Metrics.
func newMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.MetricsEnabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.New(reg)
}

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Tracing
	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TracingSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Metrics and audit
	m := newMetrics(cfg)
	sink, closeSink, err := buildAuditSink(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build audit sink")
	}
	recorder := audit.NewRecorder(sink, logger).WithMetrics(m)

	// Rules
	src, err := interaction.ParseSource(ctx, cfg.RulesSource, interaction.SourceOptions{
		Pool:       pool,
		AWSRegion:  cfg.AWSRegion,
		S3Endpoint: cfg.S3Endpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid rules source")
	}
	rules, err := interaction.LoadRuleSet(ctx, src)
	if err != nil {
		logger.Fatal().Err(err).Str("source", src.Name()).Msg("failed to load interaction rules")
	}
	stats := rules.Stats()
	logger.Info().
		Str("source", src.Name()).
		Int("drug_drug", stats.DrugDrug).
		Int("allergy_classes", stats.AllergyClasses).
		Int("condition_rules", stats.ConditionRules).
		Int("lab_rules", stats.LabRules).
		Msg("interaction rules loaded")

	// Domain
	medRepo := medication.NewMedicationRepoPG(pool)
	rxRepo := medication.NewPrescriptionRepoPG(pool)
	adminRepo := medication.NewAdministrationRepoPG(pool)
	ctxRepo := clinical.NewContextRepoPG(pool)

	medSvc := medication.NewService(medRepo, rxRepo, adminRepo)
	clinicalSvc := clinical.NewService(ctxRepo, cfg.LabWindow())
	overrides := override.NewManager(override.NewRepoPG(pool), recorder, logger).
		WithMetrics(m).
		WithInteractionValidator(rules.HasRule)
	checker := interaction.NewChecker(rules, medRepo, ctxRepo, overrides, recorder, logger).
		WithMetrics(m).
		WithLabWindow(cfg.LabWindow()).
		WithConcurrency(cfg.BatchConcurrency)
	scheduler := administration.NewScheduler(rxRepo, medRepo, adminRepo)
	verifier := administration.NewVerifier(rxRepo, medRepo, adminRepo, checker, scheduler, recorder, logger).
		WithMetrics(m).
		WithTx(func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if m != nil {
		e.Use(m.Middleware())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health and metrics stay outside authentication
	e.GET("/health", db.HealthHandler(pool))
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	apiV1 := e.Group("/api/v1", authMiddleware(cfg), middleware.RequestTimeout(cfg.RequestTimeout))
	medication.NewHandler(medSvc).RegisterRoutes(apiV1)
	clinical.NewHandler(clinicalSvc).RegisterRoutes(apiV1)
	override.NewHandler(overrides).RegisterRoutes(apiV1)
	interaction.NewHandler(checker).RegisterRoutes(apiV1)
	administration.NewHandler(verifier, scheduler).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
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
	}
	closeSink(shutdownCtx)
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
