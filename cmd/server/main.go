package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	activityapp "github.com/cozmiclearning/backend/internal/application/activity"
	admissionapp "github.com/cozmiclearning/backend/internal/application/admission"
	billingapp "github.com/cozmiclearning/backend/internal/application/billing"
	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/activity"
	"github.com/cozmiclearning/backend/internal/domain/billing"
	"github.com/cozmiclearning/backend/internal/infrastructure/auth"
	"github.com/cozmiclearning/backend/internal/infrastructure/cache"
	"github.com/cozmiclearning/backend/internal/infrastructure/config"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence"
	"github.com/cozmiclearning/backend/internal/infrastructure/telemetry"
	"github.com/cozmiclearning/backend/internal/interfaces/http/handler"
	"github.com/cozmiclearning/backend/internal/interfaces/http/middleware"
	"github.com/cozmiclearning/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting learning platform backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.TracerConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter("github.com/cozmiclearning/backend")
	resilienceMetrics, err := telemetry.NewResilienceMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create resilience metrics", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithContentionClassifier(persistence.IsLockContention),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if cfg.Telemetry.Enabled {
		if err := telemetry.RegisterDBTracing(db.DB, cfg.Database.Driver, log); err != nil {
			log.Fatal("Failed to enable database tracing", zap.Error(err))
		}
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	windows, err := cache.NewWindowStore(ctx, cfg.Admission, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to create admission window store", zap.Error(err))
	}
	defer func() {
		if err := windows.Close(); err != nil {
			log.Error("Error closing window store", zap.Error(err))
		}
	}()

	controller := admissionapp.NewController(cfg.Admission.Policy, windows,
		admissionapp.WithMetrics(resilienceMetrics),
		admissionapp.WithLogger(log.Named("admission")),
	)

	committer := persistence.NewCommitter(persistence.RetryPolicy{
		MaxAttempts:  cfg.Commit.MaxAttempts,
		InitialDelay: cfg.Commit.InitialDelay,
	},
		persistence.WithCommitLogger(log.Named("commit")),
		persistence.WithCommitMetrics(resilienceMetrics),
	)

	activityService := activityapp.NewService(committer,
		func(tx *gorm.DB) activity.Repository { return persistence.NewGormActivityRepository(tx) },
		activityapp.WithLogger(log.Named("activity")),
	)
	tierChangeService := billingapp.NewTierChangeService(committer,
		func(tx *gorm.DB) account.Repository { return persistence.NewGormAccountRepository(tx) },
		func(tx *gorm.DB) billing.EventRepository { return persistence.NewGormBillingEventRepository(tx) },
		billingapp.WithLogger(log.Named("billing")),
	)

	checks := map[string]handler.Checker{"database": db}
	if pinger, ok := windows.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = handler.CheckerFunc(func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pinger.Ping(pingCtx)
		})
	}

	engine, err := router.New(router.Dependencies{
		DB:         db.DB,
		Logger:     log,
		Controller: controller,
		Tokens:     auth.NewJWTService(cfg.JWT),
		Accounts:   persistence.NewGormAccountRepository(db.DB),

		Features: handler.NewFeatureHandler(activityService),
		Usage:    handler.NewUsageHandler(controller),
		Billing:  handler.NewBillingHandler(tierChangeService),
		Health:   handler.NewHealthHandler(checks),

		FailureSink:       logger.NewZapFailureSink(log.Named("failure")),
		ResilienceMetrics: resilienceMetrics,
		Meter:             meter,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
