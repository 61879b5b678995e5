package documents

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

// Repository stores documents and their uniqueness indexes.
type Repository interface {
	// Insert fails ErrDuplicateFingerprint or ErrDuplicateLocator when either
	// key is taken, checked and written as one step.
	Insert(ctx context.Context, doc Document) error
	// Get loads a document; inside a transaction the row stays locked,
	// exclusively when forUpdate is set.
	Get(ctx context.Context, id int64, forUpdate bool) (Document, error)
	ByFingerprint(ctx context.Context, fp Fingerprint) (int64, bool, error)
	ByLocator(ctx context.Context, locator string) (int64, bool, error)
	MarkRevoked(ctx context.Context, id int64, at time.Time) error
	ListByOwner(ctx context.Context, owner shared.Principal, page shared.Page) ([]Document, int, error)
	MaxID(ctx context.Context) (int64, error)
}

const documentColumns = `id, owner, fingerprint, locator, display_name, document_type, created_at, revoked, revoked_at`

// PostgresRepository implements Repository on the documents table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the Postgres document store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Insert(ctx context.Context, doc Document) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO documents (`+documentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NULL)`,
		doc.ID, doc.Owner.String(), doc.Fingerprint[:], doc.Locator, doc.DisplayName, doc.DocumentType, doc.CreatedAt)
	if constraint, ok := db.UniqueViolation(err); ok {
		switch constraint {
		case "documents_locator_key":
			return ErrDuplicateLocator
		default:
			return ErrDuplicateFingerprint
		}
	}
	if err != nil {
		return db.Classify(fmt.Errorf("documents: insert: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64, forUpdate bool) (Document, error) {
	sql := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	if _, ok := db.TxFrom(ctx); ok {
		if forUpdate {
			sql += ` FOR UPDATE`
		} else {
			sql += ` FOR SHARE`
		}
	}
	doc, err := scanDocument(db.Conn(ctx, r.pool).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, db.Classify(fmt.Errorf("documents: get: %w", err))
	}
	return doc, nil
}

func (r *PostgresRepository) ByFingerprint(ctx context.Context, fp Fingerprint) (int64, bool, error) {
	return r.lookup(ctx, `SELECT id FROM documents WHERE fingerprint = $1`, fp[:])
}

func (r *PostgresRepository) ByLocator(ctx context.Context, locator string) (int64, bool, error) {
	return r.lookup(ctx, `SELECT id FROM documents WHERE locator = $1`, locator)
}

func (r *PostgresRepository) lookup(ctx context.Context, sql string, arg any) (int64, bool, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, sql, arg).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, db.Classify(fmt.Errorf("documents: lookup: %w", err))
	}
	return id, true, nil
}

func (r *PostgresRepository) MarkRevoked(ctx context.Context, id int64, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE documents SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND NOT revoked`, id, at)
	if err != nil {
		return db.Classify(fmt.Errorf("documents: revoke: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyRevoked
	}
	return nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, owner shared.Principal, page shared.Page) ([]Document, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE owner = $1`, owner.String()).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("documents: count by owner: %w", err))
	}
	rows, err := q.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE owner = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		owner.String(), page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("documents: list by owner: %w", err))
	}
	defer rows.Close()
	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, db.Classify(err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	return out, total, nil
}

func (r *PostgresRepository) MaxID(ctx context.Context) (int64, error) {
	var id int64
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM documents`).Scan(&id); err != nil {
		return 0, db.Classify(fmt.Errorf("documents: max id: %w", err))
	}
	return id, nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		doc       Document
		owner     string
		fp        []byte
		revokedAt *time.Time
	)
	if err := row.Scan(&doc.ID, &owner, &fp, &doc.Locator, &doc.DisplayName, &doc.DocumentType,
		&doc.CreatedAt, &doc.Revoked, &revokedAt); err != nil {
		return Document{}, err
	}
	parsed, err := FingerprintFromBytes(fp)
	if err != nil {
		return Document{}, err
	}
	doc.Owner = shared.Principal(owner)
	doc.Fingerprint = parsed
	doc.CreatedAt = doc.CreatedAt.UTC()
	if revokedAt != nil {
		t := revokedAt.UTC()
		doc.RevokedAt = &t
	}
	return doc, nil
}
