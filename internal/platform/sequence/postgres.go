package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/trustledger/internal/platform/db"
)

// Postgres allocates ids from the sequences table. The row update takes a lock
// held until commit, so ids are handed out in commit order and a rollback
// returns the id.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres backed sequencer.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Next allocates the next id for name.
func (s *Postgres) Next(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errEmptyName
	}
	var id int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `INSERT INTO sequences (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
RETURNING value`, name).Scan(&id)
	if err != nil {
		return 0, db.Classify(fmt.Errorf("sequence: next %s: %w", name, err))
	}
	return id, nil
}

// Current returns the last allocated id, or 0.
func (s *Postgres) Current(ctx context.Context, name string) (int64, error) {
	var v int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `SELECT value FROM sequences WHERE name = $1`, name).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, db.Classify(fmt.Errorf("sequence: current %s: %w", name, err))
	}
	return v, nil
}
