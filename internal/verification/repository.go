package verification

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

// Repository stores requests and their votes.
type Repository interface {
	Insert(ctx context.Context, req Request) error
	// Get loads a request; forUpdate locks it until commit so votes on one
	// request apply one at a time.
	Get(ctx context.Context, id int64, forUpdate bool) (Request, error)
	// AddApproval fails ErrAlreadyApproved when the signer already voted.
	AddApproval(ctx context.Context, a Approval) error
	HasApproved(ctx context.Context, id int64, signer shared.Principal) (bool, error)
	UpdateProgress(ctx context.Context, req Request) error
	ListByDocument(ctx context.Context, documentID int64, page shared.Page) ([]Request, int, error)
	Approvals(ctx context.Context, id int64, page shared.Page) ([]Approval, int, error)
	MaxID(ctx context.Context) (int64, error)
	// PendingAtLeast returns the pending requests with at least count votes,
	// locked like Get with forUpdate.
	PendingAtLeast(ctx context.Context, count int) ([]Request, error)
}

const requestColumns = `id, document_id, requested_by, created_at, status, approval_count, approved_at`

// PostgresRepository implements Repository on verification_requests and
// verification_approvals.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the Postgres request store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Insert(ctx context.Context, req Request) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO verification_requests (`+requestColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.DocumentID, req.RequestedBy.String(), req.CreatedAt, string(req.Status), req.ApprovalCount, req.ApprovedAt)
	if err != nil {
		return db.Classify(fmt.Errorf("verification: insert: %w", err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64, forUpdate bool) (Request, error) {
	sql := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1`
	if _, ok := db.TxFrom(ctx); ok && forUpdate {
		sql += ` FOR UPDATE`
	}
	req, err := scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrRequestNotFound
	}
	if err != nil {
		return Request{}, db.Classify(fmt.Errorf("verification: get: %w", err))
	}
	return req, nil
}

func (r *PostgresRepository) AddApproval(ctx context.Context, a Approval) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO verification_approvals (request_id, signer, position, approved_at) VALUES ($1, $2, $3, $4)`,
		a.RequestID, a.Signer.String(), a.Position, a.ApprovedAt)
	if _, ok := db.UniqueViolation(err); ok {
		return ErrAlreadyApproved
	}
	if err != nil {
		return db.Classify(fmt.Errorf("verification: add approval: %w", err))
	}
	return nil
}

func (r *PostgresRepository) HasApproved(ctx context.Context, id int64, signer shared.Principal) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM verification_approvals WHERE request_id = $1 AND signer = $2)`,
		id, signer.String()).Scan(&ok)
	if err != nil {
		return false, db.Classify(fmt.Errorf("verification: has approved: %w", err))
	}
	return ok, nil
}

func (r *PostgresRepository) UpdateProgress(ctx context.Context, req Request) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE verification_requests SET status = $2, approval_count = $3, approved_at = $4 WHERE id = $1`,
		req.ID, string(req.Status), req.ApprovalCount, req.ApprovedAt)
	if err != nil {
		return db.Classify(fmt.Errorf("verification: update progress: %w", err))
	}
	return nil
}

func (r *PostgresRepository) ListByDocument(ctx context.Context, documentID int64, page shared.Page) ([]Request, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM verification_requests WHERE document_id = $1`, documentID).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("verification: count: %w", err))
	}
	rows, err := q.Query(ctx, `SELECT `+requestColumns+` FROM verification_requests
WHERE document_id = $1 ORDER BY id LIMIT $2 OFFSET $3`, documentID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("verification: list: %w", err))
	}
	defer rows.Close()
	out := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, db.Classify(err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Approvals(ctx context.Context, id int64, page shared.Page) ([]Approval, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM verification_approvals WHERE request_id = $1`, id).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("verification: count approvals: %w", err))
	}
	rows, err := q.Query(ctx, `SELECT request_id, signer, position, approved_at FROM verification_approvals
WHERE request_id = $1 ORDER BY position LIMIT $2 OFFSET $3`, id, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("verification: approvals: %w", err))
	}
	defer rows.Close()
	out := []Approval{}
	for rows.Next() {
		var (
			a      Approval
			signer string
		)
		if err := rows.Scan(&a.RequestID, &signer, &a.Position, &a.ApprovedAt); err != nil {
			return nil, 0, db.Classify(err)
		}
		a.Signer = shared.Principal(signer)
		a.ApprovedAt = a.ApprovedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	return out, total, nil
}

func (r *PostgresRepository) MaxID(ctx context.Context) (int64, error) {
	var id int64
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM verification_requests`).Scan(&id); err != nil {
		return 0, db.Classify(fmt.Errorf("verification: max id: %w", err))
	}
	return id, nil
}

func (r *PostgresRepository) PendingAtLeast(ctx context.Context, count int) ([]Request, error) {
	sql := `SELECT ` + requestColumns + ` FROM verification_requests
WHERE status = $1 AND approval_count >= $2 ORDER BY id`
	if _, ok := db.TxFrom(ctx); ok {
		sql += ` FOR UPDATE`
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, string(StatusPending), count)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("verification: pending: %w", err))
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req        Request
		by, status string
		approvedAt *time.Time
	)
	if err := row.Scan(&req.ID, &req.DocumentID, &by, &req.CreatedAt, &status, &req.ApprovalCount, &approvedAt); err != nil {
		return Request{}, err
	}
	req.RequestedBy = shared.Principal(by)
	req.Status = Status(status)
	req.CreatedAt = req.CreatedAt.UTC()
	if approvedAt != nil {
		t := approvedAt.UTC()
		req.ApprovedAt = &t
	}
	return req, nil
}
