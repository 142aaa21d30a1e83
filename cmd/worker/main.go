package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/growsome/growsome/internal/app"
	"github.com/growsome/growsome/internal/auth"
	jobmetrics "github.com/growsome/growsome/internal/jobs"
	"github.com/growsome/growsome/internal/observability"
	"github.com/growsome/growsome/internal/platform/cache"
	"github.com/growsome/growsome/internal/platform/db"
	"github.com/growsome/growsome/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var sessions auth.SessionStore
	switch cfg.SessionStore {
	case "redis":
		redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		sessions = auth.NewRedisSessionStore(redisClient, cfg.SessionPurgeTimeout)
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2, ConnectTimeout: cfg.PGConnectTimeout})
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		sessions = auth.NewPGSessionStore(pool, cfg.SessionPurgeTimeout)
	}

	// Purging never issues tokens, so the codec secret is irrelevant here.
	lifecycle := auth.NewLifecycle(auth.NewTokenCodec(cfg.AuthSecret, nil), sessions, cfg.TokenTTL())
	metrics := observability.NewMetrics()
	purgeJob := jobs.NewSessionPurgeJob(lifecycle, logger, jobmetrics.NewMetrics(metrics.Registerer()))
	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	cron := cfg.SessionPurgeCron
	if cron == "" {
		cron = jobs.DefaultPurgeCron
	}
	purgeTask, err := jobs.NewSessionPurgeTask(cfg.SessionPurgeGrace)
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionPurge, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cron, Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("purge_cron", cron), slog.String("store", cfg.SessionStore))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
