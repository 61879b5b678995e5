package audit

import (
	"context"
	"maps"

	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
)

// MemoryRepository keeps the log in a slice ordered by seq.
type MemoryRepository struct {
	tx      *memtx.Manager
	entries []Entry
}

// NewMemoryRepository constructs an in-memory log sharing tx with the other
// repositories.
func NewMemoryRepository(tx *memtx.Manager) *MemoryRepository {
	return &MemoryRepository{tx: tx}
}

// Append adds entry at the tail.
func (r *MemoryRepository) Append(ctx context.Context, entry Entry) error {
	entry.Meta = maps.Clone(entry.Meta)
	return r.tx.Write(ctx, func() (func(), error) {
		n := len(r.entries)
		r.entries = append(r.entries, entry)
		return func() { r.entries = r.entries[:n] }, nil
	})
}

// List filters then pages the log.
func (r *MemoryRepository) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	var matched []Entry
	r.tx.Read(ctx, func() {
		for _, e := range r.entries {
			if filters.matches(e) {
				matched = append(matched, e)
			}
		}
	})
	start, end := filters.Page.Window(len(matched))
	out := make([]Entry, end-start)
	copy(out, matched[start:end])
	return out, len(matched), nil
}

// Range returns entries after afterSeq in order.
func (r *MemoryRepository) Range(ctx context.Context, afterSeq int64, limit int) ([]Entry, error) {
	var out []Entry
	r.tx.Read(ctx, func() {
		for _, e := range r.entries {
			if e.Seq <= afterSeq {
				continue
			}
			out = append(out, e)
			if len(out) == limit {
				return
			}
		}
	})
	return out, nil
}
