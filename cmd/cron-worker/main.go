package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/convertflow/api/controllers"
	"github.com/angelmondragon/convertflow/api/routes"
	"github.com/angelmondragon/convertflow/internal/conversions"
	"github.com/angelmondragon/convertflow/internal/cron"
	"github.com/angelmondragon/convertflow/pkg/bigquery"
	"github.com/angelmondragon/convertflow/pkg/config"
	"github.com/angelmondragon/convertflow/pkg/db"
	"github.com/angelmondragon/convertflow/pkg/instance"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/metrics"
	"github.com/angelmondragon/convertflow/pkg/migrate"
	"github.com/angelmondragon/convertflow/pkg/pubsub"
	"github.com/angelmondragon/convertflow/pkg/redis"
	"github.com/angelmondragon/convertflow/pkg/storage/gcs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	once := flag.Bool("once", false, "run every job a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeAutoMigrate(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	storageClient, err := gcs.NewClient(ctx, cfg.Storage, cfg.GCP, logg)
	requireResource(ctx, logg, "gcs", err)
	defer storageClient.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	checks := []controllers.ReadinessCheck{
		{Name: "db", Pinger: dbClient},
		{Name: "gcs", Pinger: storageClient},
		{Name: "pubsub", Pinger: pubsubClient},
	}

	var audit conversions.AuditSink = conversions.NoopAuditSink{}
	if cfg.FeatureFlags.AuditEvents {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery", err)
		defer bqClient.Close()
		audit = conversions.NewBigQuerySink(bqClient, cfg.BigQuery.EventsTable)
		checks = append(checks, controllers.ReadinessCheck{Name: "bigquery", Pinger: bqClient})
	}

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
		requireResource(ctx, logg, "cron lock", err)
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: redisClient})
	} else {
		logg.Warn(ctx, "redis not configured, using in-process cron lock")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	conversionMetrics := metrics.NewConversionMetrics(registry)

	jobs, err := buildJobs(jobDeps{
		cfg:     cfg,
		logg:    logg,
		db:      dbClient,
		storage: storageClient,
		queue:   pubsubClient.NotificationQueue(),
		audit:   audit,
		metrics: conversionMetrics,
	})
	requireResource(ctx, logg, "jobs", err)

	jobRegistry, err := cron.NewRegistry(jobs...)
	requireResource(ctx, logg, "job registry", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobRegistry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Interval: cfg.Cron.Interval,
	})
	requireResource(ctx, logg, "cron service", err)

	if *once {
		logg.Info(ctx, "running cron jobs once")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		return
	}

	opsServer := &http.Server{
		Addr:              cfg.Ops.Addr,
		Handler:           routes.NewRouter(cfg, logg, registry, checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.Ops.Addr), "ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
			stop()
		}
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "ops server shutdown failed", err)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
