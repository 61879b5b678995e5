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
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/trustledger/cmd/trustledger/cli"
	"github.com/odyssey-erp/trustledger/internal/app"
	"github.com/odyssey-erp/trustledger/internal/audit"
	jobmetrics "github.com/odyssey-erp/trustledger/internal/jobs"
	"github.com/odyssey-erp/trustledger/internal/observability"
	"github.com/odyssey-erp/trustledger/internal/platform/cache"
	"github.com/odyssey-erp/trustledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, serve, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func serve(ctx context.Context) error {
	if err := app.LoadEnvFile(); err != nil {
		return err
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("trustledger", slog.Any("error", err))
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	publishers := audit.Fanout{audit.PublisherFunc(metrics.ObserveAudit)}

	var (
		redisClient *redis.Client
		jobHandler  *jobs.Handler
	)
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		publishers = append(publishers, audit.NewRedisPublisher(redisClient, cfg.AuditChannel))

		redisOpt, err := app.AsynqRedisOpt(cfg.RedisAddr)
		if err != nil {
			return err
		}
		if len(cfg.WebhookURLs) > 0 {
			jobClient, err := jobs.NewClient(redisOpt)
			if err != nil {
				return err
			}
			defer func() {
				if err := jobClient.Close(); err != nil {
					logger.Warn("jobs client close", slog.Any("error", err))
				}
			}()
			publishers = append(publishers, jobs.NewWebhookPublisher(jobClient, cfg.WebhookURLs))
		}

		inspector := asynq.NewInspector(redisOpt)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	registry := app.NewRegistry(backend.Store, publishers, app.RegistryOptions{
		RequireRegistrarRole: cfg.RegisterRequiresRole,
	}, logger)
	if err := registry.Bootstrap(ctx, cfg); err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Registry:   registry,
		Metrics:    metrics,
		JobHandler: jobHandler,
		Health:     backend.Health,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.IntegrityInProcess() {
		integrity := app.NewIntegrityJob(registry, logger, jobMetrics)
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					_ = integrity.Handle(gctx, jobs.NewLedgerIntegrityTask())
				}
			}
		})
	}
	return g.Wait()
}
