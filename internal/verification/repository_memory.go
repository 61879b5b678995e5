package verification

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// MemoryRepository keeps requests in process memory; the slice index is id-1.
type MemoryRepository struct {
	tx         *memtx.Manager
	requests   []Request
	approvals  map[int64][]Approval
	byDocument map[int64][]int64
}

// NewMemoryRepository constructs an in-memory request store sharing tx.
func NewMemoryRepository(tx *memtx.Manager) *MemoryRepository {
	return &MemoryRepository{
		tx:         tx,
		approvals:  make(map[int64][]Approval),
		byDocument: make(map[int64][]int64),
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, req Request) error {
	return r.tx.Write(ctx, func() (func(), error) {
		n := len(r.requests)
		if req.ID != int64(n+1) {
			return nil, fmt.Errorf("verification: id %d out of sequence, expected %d", req.ID, n+1)
		}
		listed := len(r.byDocument[req.DocumentID])
		r.requests = append(r.requests, req)
		r.byDocument[req.DocumentID] = append(r.byDocument[req.DocumentID], req.ID)
		return func() {
			r.requests = r.requests[:n]
			r.byDocument[req.DocumentID] = r.byDocument[req.DocumentID][:listed]
		}, nil
	})
}

func (r *MemoryRepository) Get(ctx context.Context, id int64, _ bool) (Request, error) {
	var (
		req Request
		ok  bool
	)
	r.tx.Read(ctx, func() { req, ok = r.at(id) })
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	return req, nil
}

func (r *MemoryRepository) AddApproval(ctx context.Context, a Approval) error {
	return r.tx.Write(ctx, func() (func(), error) {
		if _, ok := r.at(a.RequestID); !ok {
			return nil, ErrRequestNotFound
		}
		votes := r.approvals[a.RequestID]
		for _, v := range votes {
			if v.Signer == a.Signer {
				return nil, ErrAlreadyApproved
			}
		}
		n := len(votes)
		r.approvals[a.RequestID] = append(votes, a)
		return func() { r.approvals[a.RequestID] = r.approvals[a.RequestID][:n] }, nil
	})
}

func (r *MemoryRepository) HasApproved(ctx context.Context, id int64, signer shared.Principal) (bool, error) {
	var found bool
	r.tx.Read(ctx, func() {
		for _, v := range r.approvals[id] {
			if v.Signer == signer {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r *MemoryRepository) UpdateProgress(ctx context.Context, req Request) error {
	return r.tx.Write(ctx, func() (func(), error) {
		prev, ok := r.at(req.ID)
		if !ok {
			return nil, ErrRequestNotFound
		}
		r.requests[req.ID-1] = req
		return func() { r.requests[req.ID-1] = prev }, nil
	})
}

func (r *MemoryRepository) ListByDocument(ctx context.Context, documentID int64, page shared.Page) ([]Request, int, error) {
	var (
		out   []Request
		total int
	)
	r.tx.Read(ctx, func() {
		ids := r.byDocument[documentID]
		total = len(ids)
		start, end := page.Window(total)
		out = make([]Request, 0, end-start)
		for _, id := range ids[start:end] {
			req, _ := r.at(id)
			out = append(out, req)
		}
	})
	return out, total, nil
}

func (r *MemoryRepository) Approvals(ctx context.Context, id int64, page shared.Page) ([]Approval, int, error) {
	var (
		out   []Approval
		total int
	)
	r.tx.Read(ctx, func() {
		votes := r.approvals[id]
		total = len(votes)
		start, end := page.Window(total)
		out = make([]Approval, end-start)
		copy(out, votes[start:end])
	})
	return out, total, nil
}

func (r *MemoryRepository) MaxID(ctx context.Context) (int64, error) {
	var n int
	r.tx.Read(ctx, func() { n = len(r.requests) })
	return int64(n), nil
}

func (r *MemoryRepository) PendingAtLeast(ctx context.Context, count int) ([]Request, error) {
	var out []Request
	r.tx.Read(ctx, func() {
		for _, req := range r.requests {
			if req.Status == StatusPending && req.ApprovalCount >= count {
				out = append(out, req)
			}
		}
	})
	return out, nil
}

func (r *MemoryRepository) at(id int64) (Request, bool) {
	if id < 1 || id > int64(len(r.requests)) {
		return Request{}, false
	}
	return r.requests[id-1], true
}
