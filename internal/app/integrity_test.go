package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/documents"
	"github.com/odyssey-erp/trustledger/jobs"
)

// writeAfterRange starts one registration as soon as the first audit page has
// been read, and gives it a moment to commit before the run continues.
type writeAfterRange struct {
	jobs.AuditReader
	once     sync.Once
	register func() error
	done     chan error
}

func (w *writeAfterRange) Range(ctx context.Context, after int64, limit int) ([]audit.Entry, error) {
	page, err := w.AuditReader.Range(ctx, after, limit)
	w.once.Do(func() {
		go func() { w.done <- w.register() }()
		select {
		case err := <-w.done:
			w.done <- err
		case <-time.After(50 * time.Millisecond):
		}
	})
	return page, err
}

func TestIntegrityIgnoresWritesCommittedMidRun(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMemoryStore(), nil, RegistryOptions{}, nil)
	require.NoError(t, reg.Bootstrap(ctx, testConfig()))

	register := func(b string) error {
		fp, err := documents.ParseFingerprint("0x" + strings.Repeat(b, 32))
		if err != nil {
			return err
		}
		_, err = reg.Documents.Register(ctx, documents.RegisterInput{
			Fingerprint: fp, Locator: "ipfs://" + b, DisplayName: "Deed",
		}, "owner")
		return err
	}
	require.NoError(t, register("11"))

	racing := &writeAfterRange{
		AuditReader: reg.Audit,
		register:    func() error { return register("22") },
		done:        make(chan error, 1),
	}
	job := jobs.NewLedgerIntegrityJob(reg.Tx, racing, reg.Sequences, reg.Documents, reg.Verification, nil, nil)

	report, err := job.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), "%+v", report.Violations)
	require.Equal(t, int64(3), report.LastSeq)

	require.NoError(t, <-racing.done)

	report, err = NewIntegrityJob(reg, nil, nil).Run(ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), "%+v", report.Violations)
	require.Equal(t, int64(4), report.LastSeq)
}
