package signers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/trustledger/internal/platform/db"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Repository stores membership and the threshold. Reads made inside a
// transaction keep the rows they saw until commit, so a concurrent removal
// cannot slip between an eligibility check and the vote it guards.
type Repository interface {
	IsSigner(ctx context.Context, principal shared.Principal) (bool, error)
	Add(ctx context.Context, principal shared.Principal, at time.Time) (bool, error)
	Remove(ctx context.Context, principal shared.Principal) (bool, error)
	List(ctx context.Context) ([]shared.Principal, error)
	Count(ctx context.Context) (int, error)
	// Threshold returns ok=false before initialisation; exclusive locks the
	// config row against concurrent membership changes.
	Threshold(ctx context.Context, exclusive bool) (int, bool, error)
	SetThreshold(ctx context.Context, threshold int, at time.Time) error
}

// PostgresRepository implements Repository on signers and signer_config.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the Postgres signer store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) IsSigner(ctx context.Context, principal shared.Principal) (bool, error) {
	sql := `SELECT 1 FROM signers WHERE principal = $1`
	if _, ok := db.TxFrom(ctx); ok {
		sql += ` FOR SHARE`
	}
	var one int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, sql, principal.String()).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.Classify(fmt.Errorf("signers: is signer: %w", err))
	}
	return true, nil
}

func (r *PostgresRepository) Add(ctx context.Context, principal shared.Principal, at time.Time) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO signers (principal, added_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`, principal.String(), at)
	if err != nil {
		return false, db.Classify(fmt.Errorf("signers: add: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) Remove(ctx context.Context, principal shared.Principal) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM signers WHERE principal = $1`, principal.String())
	if err != nil {
		return false, db.Classify(fmt.Errorf("signers: remove: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]shared.Principal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT principal FROM signers ORDER BY principal`)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("signers: list: %w", err))
	}
	defer rows.Close()
	out := []shared.Principal{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, shared.Principal(p))
	}
	return out, db.Classify(rows.Err())
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM signers`).Scan(&n); err != nil {
		return 0, db.Classify(fmt.Errorf("signers: count: %w", err))
	}
	return n, nil
}

func (r *PostgresRepository) Threshold(ctx context.Context, exclusive bool) (int, bool, error) {
	sql := `SELECT threshold FROM signer_config WHERE singleton`
	if _, ok := db.TxFrom(ctx); ok {
		if exclusive {
			sql += ` FOR UPDATE`
		} else {
			sql += ` FOR SHARE`
		}
	}
	var t int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, sql).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, db.Classify(fmt.Errorf("signers: threshold: %w", err))
	}
	return t, true, nil
}

func (r *PostgresRepository) SetThreshold(ctx context.Context, threshold int, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO signer_config (singleton, threshold, updated_at)
VALUES (TRUE, $1, $2)
ON CONFLICT (singleton) DO UPDATE SET threshold = EXCLUDED.threshold, updated_at = EXCLUDED.updated_at`,
		threshold, at)
	if err != nil {
		return db.Classify(fmt.Errorf("signers: set threshold: %w", err))
	}
	return nil
}
