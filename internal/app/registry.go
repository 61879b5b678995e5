package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/documents"
	"github.com/odyssey-erp/trustledger/internal/platform/db"
	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
	"github.com/odyssey-erp/trustledger/internal/platform/sequence"
	"github.com/odyssey-erp/trustledger/internal/rbac"
	"github.com/odyssey-erp/trustledger/internal/shared"
	"github.com/odyssey-erp/trustledger/internal/signers"
	"github.com/odyssey-erp/trustledger/internal/verification"
)

// SequenceStore allocates ids and reports counters for integrity checks.
type SequenceStore interface {
	shared.Sequencer
	Current(ctx context.Context, name string) (int64, error)
}

// Store bundles the storage collaborators of one backend. Every repository
// must join transactions opened by Tx.
type Store struct {
	Tx        shared.TxManager
	Sequences SequenceStore
	Audit     audit.Repository
	Roles     rbac.Repository
	Signers   signers.Repository
	Documents documents.Repository
	Requests  verification.Repository
}

// NewMemoryStore builds an in-process store sharing one memtx.Manager.
func NewMemoryStore() Store {
	tx := memtx.New()
	return Store{
		Tx:        tx,
		Sequences: sequence.NewMemory(tx),
		Audit:     audit.NewMemoryRepository(tx),
		Roles:     rbac.NewMemoryRepository(tx),
		Signers:   signers.NewMemoryRepository(tx),
		Documents: documents.NewMemoryRepository(tx),
		Requests:  verification.NewMemoryRepository(tx),
	}
}

// NewPostgresStore builds a store on pool. Run db.Migrate first.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return Store{
		Tx:        db.NewTxManager(pool),
		Sequences: sequence.NewPostgres(pool),
		Audit:     audit.NewPostgresRepository(pool),
		Roles:     rbac.NewPostgresRepository(pool),
		Signers:   signers.NewPostgresRepository(pool),
		Documents: documents.NewPostgresRepository(pool),
		Requests:  verification.NewPostgresRepository(pool),
	}
}

// RegistryOptions tunes service policy.
type RegistryOptions struct {
	RequireRegistrarRole bool
}

// Registry is the wired set of services behind the API.
type Registry struct {
	Tx           shared.TxManager
	Audit        *audit.Recorder
	Roles        *rbac.Service
	Signers      *signers.Service
	Documents    *documents.Service
	Verification *verification.Service
	Sequences    SequenceStore
}

// NewRegistry wires services over store. publisher may be nil.
func NewRegistry(store Store, publisher audit.Publisher, opts RegistryOptions, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	recorder := audit.NewRecorder(store.Audit, store.Sequences, publisher, logger)
	roles := rbac.NewService(store.Tx, store.Roles, recorder, logger)
	signerSvc := signers.NewService(store.Tx, store.Signers, roles, recorder, logger)
	docs := documents.NewService(store.Tx, store.Documents, store.Sequences, roles, recorder,
		documents.Options{RequireRegistrarRole: opts.RequireRegistrarRole}, logger)
	workflow := verification.NewService(store.Tx, store.Requests, store.Sequences, docs, signerSvc, recorder, logger)
	signerSvc.OnThresholdLowered(workflow)
	return &Registry{
		Tx:           store.Tx,
		Audit:        recorder,
		Roles:        roles,
		Signers:      signerSvc,
		Documents:    docs,
		Verification: workflow,
		Sequences:    store.Sequences,
	}
}

// Bootstrap installs the admin authority and the first signer set. Both steps
// are no-ops on a registry that was initialised before.
func (r *Registry) Bootstrap(ctx context.Context, cfg *Config) error {
	admin := shared.ParsePrincipal(cfg.BootstrapAdmin)
	if err := r.Roles.Initialize(ctx, admin); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	names := cfg.Signers()
	members := make([]shared.Principal, len(names))
	for i, name := range names {
		members[i] = shared.ParsePrincipal(name)
	}
	if err := r.Signers.Initialize(ctx, members, cfg.BootstrapThreshold, admin); err != nil {
		return fmt.Errorf("bootstrap signers: %w", err)
	}
	return nil
}
