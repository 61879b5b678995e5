package signers

import (
	"context"
	"slices"
	"time"

	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// MemoryRepository keeps the signer set in process memory.
type MemoryRepository struct {
	tx        *memtx.Manager
	signers   map[shared.Principal]time.Time
	threshold int
}

// NewMemoryRepository constructs an in-memory signer store sharing tx.
func NewMemoryRepository(tx *memtx.Manager) *MemoryRepository {
	return &MemoryRepository{tx: tx, signers: make(map[shared.Principal]time.Time)}
}

func (r *MemoryRepository) IsSigner(ctx context.Context, principal shared.Principal) (bool, error) {
	var ok bool
	r.tx.Read(ctx, func() { _, ok = r.signers[principal] })
	return ok, nil
}

func (r *MemoryRepository) Add(ctx context.Context, principal shared.Principal, at time.Time) (bool, error) {
	var added bool
	err := r.tx.Write(ctx, func() (func(), error) {
		if _, ok := r.signers[principal]; ok {
			return nil, nil
		}
		r.signers[principal] = at
		added = true
		return func() { delete(r.signers, principal) }, nil
	})
	return added, err
}

func (r *MemoryRepository) Remove(ctx context.Context, principal shared.Principal) (bool, error) {
	var removed bool
	err := r.tx.Write(ctx, func() (func(), error) {
		at, ok := r.signers[principal]
		if !ok {
			return nil, nil
		}
		delete(r.signers, principal)
		removed = true
		return func() { r.signers[principal] = at }, nil
	})
	return removed, err
}

func (r *MemoryRepository) List(ctx context.Context) ([]shared.Principal, error) {
	out := []shared.Principal{}
	r.tx.Read(ctx, func() {
		for p := range r.signers {
			out = append(out, p)
		}
	})
	slices.Sort(out)
	return out, nil
}

func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	r.tx.Read(ctx, func() { n = len(r.signers) })
	return n, nil
}

func (r *MemoryRepository) Threshold(ctx context.Context, _ bool) (int, bool, error) {
	var t int
	r.tx.Read(ctx, func() { t = r.threshold })
	return t, t > 0, nil
}

func (r *MemoryRepository) SetThreshold(ctx context.Context, threshold int, _ time.Time) error {
	return r.tx.Write(ctx, func() (func(), error) {
		prev := r.threshold
		r.threshold = threshold
		return func() { r.threshold = prev }, nil
	})
}
