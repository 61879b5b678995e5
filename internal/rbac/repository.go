package rbac

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

// Repository stores role memberships and the distinguished admin.
type Repository interface {
	HasRole(ctx context.Context, role Role, principal shared.Principal) (bool, error)
	Grant(ctx context.Context, role Role, principal shared.Principal, at time.Time) (bool, error)
	Revoke(ctx context.Context, role Role, principal shared.Principal) (bool, error)
	Members(ctx context.Context, role Role) ([]shared.Principal, error)
	RolesOf(ctx context.Context, principal shared.Principal) ([]Role, error)
	// Admin returns the distinguished admin; lock holds the row until commit.
	Admin(ctx context.Context, lock bool) (shared.Principal, bool, error)
	SetAdmin(ctx context.Context, principal shared.Principal, at time.Time) error
}

// PostgresRepository implements Repository on role_assignments and admin_authority.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the Postgres role store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) HasRole(ctx context.Context, role Role, principal shared.Principal) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_assignments WHERE role = $1 AND principal = $2)`,
		string(role), principal.String()).Scan(&ok)
	if err != nil {
		return false, db.Classify(fmt.Errorf("rbac: has role: %w", err))
	}
	return ok, nil
}

func (r *PostgresRepository) Grant(ctx context.Context, role Role, principal shared.Principal, at time.Time) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO role_assignments (role, principal, granted_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		string(role), principal.String(), at)
	if err != nil {
		return false, db.Classify(fmt.Errorf("rbac: grant: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, role Role, principal shared.Principal) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM role_assignments WHERE role = $1 AND principal = $2`, string(role), principal.String())
	if err != nil {
		return false, db.Classify(fmt.Errorf("rbac: revoke: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) Members(ctx context.Context, role Role) ([]shared.Principal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT principal FROM role_assignments WHERE role = $1 ORDER BY principal`, string(role))
	if err != nil {
		return nil, db.Classify(fmt.Errorf("rbac: members: %w", err))
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

func (r *PostgresRepository) RolesOf(ctx context.Context, principal shared.Principal) ([]Role, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT role FROM role_assignments WHERE principal = $1`, principal.String())
	if err != nil {
		return nil, db.Classify(fmt.Errorf("rbac: roles of: %w", err))
	}
	defer rows.Close()
	held := map[Role]struct{}{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, db.Classify(err)
		}
		held[Role(role)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return orderRoles(held), nil
}

func (r *PostgresRepository) Admin(ctx context.Context, lock bool) (shared.Principal, bool, error) {
	sql := `SELECT principal FROM admin_authority WHERE singleton`
	if lock {
		sql += ` FOR UPDATE`
	}
	var p string
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, sql).Scan(&p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, db.Classify(fmt.Errorf("rbac: admin: %w", err))
	}
	return shared.Principal(p), true, nil
}

func (r *PostgresRepository) SetAdmin(ctx context.Context, principal shared.Principal, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO admin_authority (singleton, principal, updated_at)
VALUES (TRUE, $1, $2)
ON CONFLICT (singleton) DO UPDATE SET principal = EXCLUDED.principal, updated_at = EXCLUDED.updated_at`,
		principal.String(), at)
	if err != nil {
		return db.Classify(fmt.Errorf("rbac: set admin: %w", err))
	}
	return nil
}

func orderRoles(held map[Role]struct{}) []Role {
	out := make([]Role, 0, len(held))
	for _, r := range Roles {
		if _, ok := held[r]; ok {
			out = append(out, r)
		}
	}
	return out
}
