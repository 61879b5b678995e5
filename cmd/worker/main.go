package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/trustledger/internal/app"
	jobmetrics "github.com/odyssey-erp/trustledger/internal/jobs"
	"github.com/odyssey-erp/trustledger/jobs"
)

// cronUniqueTTL keeps a slow integrity run from being enqueued twice.
const cronUniqueTTL = 10 * time.Minute

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.LoadEnvFile(); err != nil {
		slog.Default().Error("load env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))
	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}
	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.Close()

	redisOpt, err := app.AsynqRedisOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	deliveryJob := jobs.NewAuditDeliveryJob(nil, logger, metrics)
	workerCfg := jobs.WorkerConfig{
		RedisOpts: redisOpt,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditDeliver, Handler: deliveryJob.Handle},
		},
	}
	if cfg.SharedLedger() {
		registry := app.NewRegistry(backend.Store, nil, app.RegistryOptions{}, logger)
		integrityJob := app.NewIntegrityJob(registry, logger, metrics)
		workerCfg.Handlers = append(workerCfg.Handlers, jobs.TaskHandler{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle})
		workerCfg.Cron = []jobs.CronRegistration{
			{Spec: cfg.IntegrityCron, Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.Unique(cronUniqueTTL)}},
		}
	} else {
		// a memory ledger lives in the server process, which checks it itself
		logger.Info("memory store: ledger integrity left to the server")
	}

	worker, err := jobs.NewWorker(workerCfg)
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
