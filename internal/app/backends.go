package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/trustledger/internal/jobs"
	"github.com/odyssey-erp/trustledger/internal/platform/cache"
	"github.com/odyssey-erp/trustledger/internal/platform/db"
	"github.com/odyssey-erp/trustledger/jobs"
)

// Backend is an opened store plus its readiness probe and cleanup.
type Backend struct {
	Store  Store
	Health func(r *http.Request) error
	Close  func()
}

// OpenBackend opens the store selected by STORE_DRIVER. The Postgres schema is
// migrated before the store is returned.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (Backend, error) {
	if cfg.StoreDriver != StorePostgres {
		logger.Warn("using in-memory store; state is lost on restart")
		return Backend{Store: NewMemoryStore(), Close: func() {}}, nil
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return Backend{}, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return Backend{}, err
	}
	logger.Info("postgres store ready")
	return Backend{
		Store:  NewPostgresStore(pool),
		Health: func(r *http.Request) error { return pool.Ping(r.Context()) },
		Close:  pool.Close,
	}, nil
}

// AsynqRedisOpt converts REDIS_ADDR into asynq connection options.
func AsynqRedisOpt(addr string) (asynq.RedisClientOpt, error) {
	opts, err := cache.Options(addr)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{Addr: opts.Addr, Username: opts.Username, Password: opts.Password, DB: opts.DB, TLSConfig: opts.TLSConfig}, nil
}

// NewIntegrityJob wires the ledger integrity check over reg.
func NewIntegrityJob(reg *Registry, logger *slog.Logger, metrics *jobmetrics.Metrics) *jobs.LedgerIntegrityJob {
	return jobs.NewLedgerIntegrityJob(reg.Tx, reg.Audit, reg.Sequences, reg.Documents, reg.Verification, logger, metrics)
}
