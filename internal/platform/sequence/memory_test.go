package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
)

func TestMemoryNextStartsAtOneAndReleasesOnRollback(t *testing.T) {
	tx := memtx.New()
	seq := NewMemory(tx)
	ctx := context.Background()

	id, err := seq.Next(ctx, Documents)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	_ = tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := seq.Next(ctx, Documents)
		require.NoError(t, err)
		require.Equal(t, int64(2), id)
		return errors.New("abort")
	})

	id, err = seq.Next(ctx, Documents)
	require.NoError(t, err)
	require.Equal(t, int64(2), id)

	other, err := seq.Next(ctx, Requests)
	require.NoError(t, err)
	require.Equal(t, int64(1), other)
}
