// Package memtx gives in-memory repositories the same all-or-nothing contract the
// Postgres repositories get from a database transaction.
package memtx

import (
	"context"
	"errors"
	"sync"
)

type txKey struct{}

type tx struct {
	owner *Manager
	undo  []func()
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// Manager serialises writers over every repository that shares it. Reads take
// the read lock; a transaction holds the write lock for its whole callback.
type Manager struct {
	mu sync.RWMutex
}

// New constructs a Manager.
func New() *Manager {
	return &Manager{}
}

// ErrReadOnly is returned by writes attempted inside ReadSnapshot.
var ErrReadOnly = errors.New("memtx: write inside read snapshot")

type snapshotKey struct{}

// WithinTx runs fn holding the write lock. A nested call joins the outer
// transaction. When fn fails or panics every registered undo runs in reverse
// order.
func (m *Manager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.current(ctx) != nil {
		return fn(ctx)
	}
	if m.inSnapshot(ctx) {
		return ErrReadOnly
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &tx{owner: m}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// ReadSnapshot runs fn holding the read lock, so every read made through ctx
// sees the same committed state. Writers wait until fn returns.
func (m *Manager) ReadSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.current(ctx) != nil || m.inSnapshot(ctx) {
		return fn(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(context.WithValue(ctx, snapshotKey{}, m))
}

// Read runs fn under the read lock unless ctx already holds a lock of m.
func (m *Manager) Read(ctx context.Context, fn func()) {
	if m.current(ctx) != nil || m.inSnapshot(ctx) {
		fn()
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn()
}

// Write applies a mutation and keeps its undo for rollback. Outside a
// transaction the mutation runs in a transaction of its own.
func (m *Manager) Write(ctx context.Context, apply func() (undo func(), err error)) error {
	t := m.current(ctx)
	if t == nil {
		return m.WithinTx(ctx, func(ctx context.Context) error {
			return m.Write(ctx, apply)
		})
	}
	undo, err := apply()
	if err != nil {
		return err
	}
	if undo != nil {
		t.undo = append(t.undo, undo)
	}
	return nil
}

func (m *Manager) inSnapshot(ctx context.Context) bool {
	owner, ok := ctx.Value(snapshotKey{}).(*Manager)
	return ok && owner == m
}

func (m *Manager) current(ctx context.Context) *tx {
	t, ok := ctx.Value(txKey{}).(*tx)
	if !ok || t.owner != m {
		return nil
	}
	return t
}
