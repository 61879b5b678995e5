package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "documents_locator_key"})
	name, ok := UniqueViolation(err)
	require.True(t, ok)
	require.Equal(t, "documents_locator_key", name)

	_, ok = UniqueViolation(&pgconn.PgError{Code: "23503"})
	require.False(t, ok)
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil))
	require.ErrorIs(t, Classify(pgx.ErrNoRows), pgx.ErrNoRows)
	require.NotErrorIs(t, Classify(&pgconn.PgError{Code: "23505"}), shared.ErrUnavailable)

	dial := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	classified := Classify(dial)
	require.ErrorIs(t, classified, shared.ErrUnavailable)
	require.ErrorIs(t, classified, dial)
}
