package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/trustledger/internal/platform/db"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// PostgresRepository stores the log in audit_log. The table rejects UPDATE and
// DELETE through a trigger.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the Postgres log.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Append inserts entry using the transaction bound to ctx.
func (r *PostgresRepository) Append(ctx context.Context, entry Entry) error {
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	_, err = db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO audit_log (seq, kind, entity, entity_id, actor, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Seq, string(entry.Kind), entry.Entity, entry.EntityID, entry.Actor.String(), meta, entry.At)
	return db.Classify(err)
}

// List returns one page of matching entries plus the total match count.
func (r *PostgresRepository) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	where, args := buildWhere(filters)
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("audit: count: %w", err))
	}

	args = append(args, filters.Page.PerPage, filters.Page.Offset())
	sql := fmt.Sprintf(`SELECT seq, kind, entity, entity_id, actor, meta, occurred_at FROM audit_log%s
ORDER BY seq LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("audit: list: %w", err))
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Range returns up to limit entries with seq greater than afterSeq.
func (r *PostgresRepository) Range(ctx context.Context, afterSeq int64, limit int) ([]Entry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT seq, kind, entity, entity_id, actor, meta, occurred_at
FROM audit_log WHERE seq > $1 ORDER BY seq LIMIT $2`, afterSeq, limit)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("audit: range: %w", err))
	}
	return scanEntries(rows)
}

func buildWhere(f Filters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if !f.Actor.IsZero() {
		add("actor = $%d", f.Actor.String())
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.AfterSeq > 0 {
		add("seq > $%d", f.AfterSeq)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			kind  string
			actor string
			meta  []byte
		)
		if err := rows.Scan(&e.Seq, &kind, &e.Entity, &e.EntityID, &actor, &meta, &e.At); err != nil {
			return nil, db.Classify(fmt.Errorf("audit: scan: %w", err))
		}
		e.Kind = Kind(kind)
		e.Actor = shared.Principal(actor)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		e.At = e.At.UTC()
		out = append(out, e)
	}
	return out, db.Classify(rows.Err())
}
