package shared

import (
	"context"
	"time"
)

// TxManager runs fn so that every repository write made through ctx commits or
// rolls back as one unit.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	// ReadSnapshot runs fn so that every read made through ctx sees one
	// consistent committed state.
	ReadSnapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

// Sequencer hands out gapless ids per named sequence, starting at 1. Next must be
// called inside WithinTx so a rolled back call releases its id.
type Sequencer interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Clock supplies creation timestamps.
type Clock func() time.Time

// SystemClock returns UTC wall time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
