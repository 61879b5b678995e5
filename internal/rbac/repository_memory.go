package rbac

import (
	"context"
	"slices"
	"time"

	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// MemoryRepository keeps role state in process memory.
type MemoryRepository struct {
	tx      *memtx.Manager
	members map[Role]map[shared.Principal]time.Time
	admin   shared.Principal
}

// NewMemoryRepository constructs an in-memory role store sharing tx.
func NewMemoryRepository(tx *memtx.Manager) *MemoryRepository {
	return &MemoryRepository{tx: tx, members: make(map[Role]map[shared.Principal]time.Time)}
}

func (r *MemoryRepository) HasRole(ctx context.Context, role Role, principal shared.Principal) (bool, error) {
	var ok bool
	r.tx.Read(ctx, func() { _, ok = r.members[role][principal] })
	return ok, nil
}

func (r *MemoryRepository) Grant(ctx context.Context, role Role, principal shared.Principal, at time.Time) (bool, error) {
	var added bool
	err := r.tx.Write(ctx, func() (func(), error) {
		set := r.members[role]
		if set == nil {
			set = make(map[shared.Principal]time.Time)
			r.members[role] = set
		}
		if _, ok := set[principal]; ok {
			return nil, nil
		}
		set[principal] = at
		added = true
		return func() { delete(set, principal) }, nil
	})
	return added, err
}

func (r *MemoryRepository) Revoke(ctx context.Context, role Role, principal shared.Principal) (bool, error) {
	var removed bool
	err := r.tx.Write(ctx, func() (func(), error) {
		set := r.members[role]
		at, ok := set[principal]
		if !ok {
			return nil, nil
		}
		delete(set, principal)
		removed = true
		return func() { set[principal] = at }, nil
	})
	return removed, err
}

func (r *MemoryRepository) Members(ctx context.Context, role Role) ([]shared.Principal, error) {
	out := []shared.Principal{}
	r.tx.Read(ctx, func() {
		for p := range r.members[role] {
			out = append(out, p)
		}
	})
	slices.Sort(out)
	return out, nil
}

func (r *MemoryRepository) RolesOf(ctx context.Context, principal shared.Principal) ([]Role, error) {
	held := map[Role]struct{}{}
	r.tx.Read(ctx, func() {
		for role, set := range r.members {
			if _, ok := set[principal]; ok {
				held[role] = struct{}{}
			}
		}
	})
	return orderRoles(held), nil
}

func (r *MemoryRepository) Admin(ctx context.Context, _ bool) (shared.Principal, bool, error) {
	var p shared.Principal
	r.tx.Read(ctx, func() { p = r.admin })
	return p, !p.IsZero(), nil
}

func (r *MemoryRepository) SetAdmin(ctx context.Context, principal shared.Principal, _ time.Time) error {
	return r.tx.Write(ctx, func() (func(), error) {
		prev := r.admin
		r.admin = principal
		return func() { r.admin = prev }, nil
	})
}
