package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/trustledger/internal/platform/sequence"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Repository persists entries in commit order.
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filters Filters) ([]Entry, int, error)
	Range(ctx context.Context, afterSeq int64, limit int) ([]Entry, error)
}

// Recorder appends entries inside the caller's transaction and dispatches them
// to external listeners once the transaction has committed.
type Recorder struct {
	repo      Repository
	seq       shared.Sequencer
	publisher Publisher
	clock     shared.Clock
	logger    *slog.Logger
}

// NewRecorder constructs a Recorder. publisher may be nil.
func NewRecorder(repo Repository, seq shared.Sequencer, publisher Publisher, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, seq: seq, publisher: publisher, clock: shared.SystemClock, logger: logger}
}

// Record appends entry. Call it inside WithinTx, after every check has passed,
// so a failed call leaves no entry behind.
func (r *Recorder) Record(ctx context.Context, entry Entry) (Entry, error) {
	if r == nil {
		return Entry{}, errors.New("audit: recorder not initialised")
	}
	if entry.Kind == "" || entry.Entity == "" || entry.EntityID == "" {
		return Entry{}, errors.New("audit: entry requires kind/entity/entity_id")
	}
	seq, err := r.seq.Next(ctx, sequence.Audit)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: allocate seq: %w", err)
	}
	entry.Seq = seq
	if entry.At.IsZero() {
		entry.At = r.clock()
	}
	if err := r.repo.Append(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("audit: append: %w", err)
	}
	return entry, nil
}

// Dispatch hands committed entries to the publisher. Delivery is best effort:
// failures are logged and never undo the committed change.
func (r *Recorder) Dispatch(ctx context.Context, entries ...Entry) {
	if r == nil || r.publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, entry := range entries {
		if entry.Seq == 0 {
			continue
		}
		if err := r.publisher.Publish(ctx, entry); err != nil {
			r.logger.Warn("audit dispatch",
				slog.Int64("seq", entry.Seq),
				slog.String("kind", string(entry.Kind)),
				slog.Any("error", err),
			)
		}
	}
}

// History returns one page of entries ordered by seq.
func (r *Recorder) History(ctx context.Context, filters Filters) (Result, error) {
	if r == nil || r.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	filters.Page = shared.NewPage(filters.Page.Page, filters.Page.PerPage)
	entries, total, err := r.repo.List(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	return Result{Entries: entries, Paging: shared.NewPagination(filters.Page, total)}, nil
}

// Range returns up to limit entries with seq greater than afterSeq.
func (r *Recorder) Range(ctx context.Context, afterSeq int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = shared.MaxPerPage
	}
	return r.repo.Range(ctx, afterSeq, limit)
}
