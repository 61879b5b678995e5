package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// MemoryRepository keeps documents in process memory. Ids are dense, so the
// slice index is id-1.
type MemoryRepository struct {
	tx            *memtx.Manager
	docs          []Document
	byFingerprint map[Fingerprint]int64
	byLocator     map[string]int64
	byOwner       map[shared.Principal][]int64
}

// NewMemoryRepository constructs an in-memory document store sharing tx.
func NewMemoryRepository(tx *memtx.Manager) *MemoryRepository {
	return &MemoryRepository{
		tx:            tx,
		byFingerprint: make(map[Fingerprint]int64),
		byLocator:     make(map[string]int64),
		byOwner:       make(map[shared.Principal][]int64),
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, doc Document) error {
	return r.tx.Write(ctx, func() (func(), error) {
		if _, ok := r.byFingerprint[doc.Fingerprint]; ok {
			return nil, ErrDuplicateFingerprint
		}
		if _, ok := r.byLocator[doc.Locator]; ok {
			return nil, ErrDuplicateLocator
		}
		n := len(r.docs)
		if doc.ID != int64(n+1) {
			return nil, fmt.Errorf("documents: id %d out of sequence, expected %d", doc.ID, n+1)
		}
		owned := len(r.byOwner[doc.Owner])
		r.docs = append(r.docs, doc)
		r.byFingerprint[doc.Fingerprint] = doc.ID
		r.byLocator[doc.Locator] = doc.ID
		r.byOwner[doc.Owner] = append(r.byOwner[doc.Owner], doc.ID)
		return func() {
			r.docs = r.docs[:n]
			delete(r.byFingerprint, doc.Fingerprint)
			delete(r.byLocator, doc.Locator)
			r.byOwner[doc.Owner] = r.byOwner[doc.Owner][:owned]
		}, nil
	})
}

func (r *MemoryRepository) Get(ctx context.Context, id int64, _ bool) (Document, error) {
	var (
		doc Document
		ok  bool
	)
	r.tx.Read(ctx, func() { doc, ok = r.at(id) })
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepository) ByFingerprint(ctx context.Context, fp Fingerprint) (int64, bool, error) {
	var (
		id int64
		ok bool
	)
	r.tx.Read(ctx, func() { id, ok = r.byFingerprint[fp] })
	return id, ok, nil
}

func (r *MemoryRepository) ByLocator(ctx context.Context, locator string) (int64, bool, error) {
	var (
		id int64
		ok bool
	)
	r.tx.Read(ctx, func() { id, ok = r.byLocator[locator] })
	return id, ok, nil
}

func (r *MemoryRepository) MarkRevoked(ctx context.Context, id int64, at time.Time) error {
	return r.tx.Write(ctx, func() (func(), error) {
		doc, ok := r.at(id)
		if !ok {
			return nil, ErrNotFound
		}
		if doc.Revoked {
			return nil, ErrAlreadyRevoked
		}
		revoked := doc
		revoked.Revoked = true
		revoked.RevokedAt = &at
		r.docs[id-1] = revoked
		return func() { r.docs[id-1] = doc }, nil
	})
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, owner shared.Principal, page shared.Page) ([]Document, int, error) {
	var (
		out   []Document
		total int
	)
	r.tx.Read(ctx, func() {
		ids := r.byOwner[owner]
		total = len(ids)
		start, end := page.Window(total)
		out = make([]Document, 0, end-start)
		for _, id := range ids[start:end] {
			doc, _ := r.at(id)
			out = append(out, doc)
		}
	})
	return out, total, nil
}

func (r *MemoryRepository) MaxID(ctx context.Context) (int64, error) {
	var n int
	r.tx.Read(ctx, func() { n = len(r.docs) })
	return int64(n), nil
}

func (r *MemoryRepository) at(id int64) (Document, bool) {
	if id < 1 || id > int64(len(r.docs)) {
		return Document{}, false
	}
	return r.docs[id-1], true
}
