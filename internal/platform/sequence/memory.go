// Package sequence allocates gapless, never reused ids per named sequence.
package sequence

import (
	"context"
	"errors"

	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
)

// Names of the sequences the registry allocates from.
const (
	Documents = "documents"
	Requests  = "verification_requests"
	Audit     = "audit"
)

var errEmptyName = errors.New("sequence: name required")

// Memory keeps counters in process memory. It must share the memtx.Manager of
// the repositories whose rows it numbers.
type Memory struct {
	tx     *memtx.Manager
	values map[string]int64
}

// NewMemory constructs an in-memory sequencer.
func NewMemory(tx *memtx.Manager) *Memory {
	return &Memory{tx: tx, values: make(map[string]int64)}
}

// Next allocates the next id; the first id of every sequence is 1.
func (s *Memory) Next(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errEmptyName
	}
	var id int64
	err := s.tx.Write(ctx, func() (func(), error) {
		s.values[name]++
		id = s.values[name]
		return func() { s.values[name]-- }, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Current returns the last allocated id, or 0.
func (s *Memory) Current(ctx context.Context, name string) (int64, error) {
	var v int64
	s.tx.Read(ctx, func() { v = s.values[name] })
	return v, nil
}
