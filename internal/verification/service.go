package verification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/documents"
	"github.com/odyssey-erp/trustledger/internal/platform/sequence"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// DocumentReader is what the workflow needs from the document registry.
type DocumentReader interface {
	Get(ctx context.Context, id int64) (documents.Document, error)
}

// SignerReader is what the workflow needs from the signer set.
type SignerReader interface {
	IsSigner(ctx context.Context, principal shared.Principal) (bool, error)
	Threshold(ctx context.Context) (int, error)
}

// Service runs verification requests.
//
// The threshold is read live on every vote: changing it moves the bar for all
// pending requests at once. Lowering it completes every pending request that
// already meets the new bar, since no later vote might come. A request whose
// document is revoked after creation keeps collecting votes.
type Service struct {
	tx      shared.TxManager
	repo    Repository
	seq     shared.Sequencer
	docs    DocumentReader
	signers SignerReader
	audit   *audit.Recorder
	clock   shared.Clock
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(tx shared.TxManager, repo Repository, seq shared.Sequencer, docs DocumentReader, signers SignerReader, recorder *audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tx:      tx,
		repo:    repo,
		seq:     seq,
		docs:    docs,
		signers: signers,
		audit:   recorder,
		clock:   shared.SystemClock,
		logger:  logger,
	}
}

// CreateRequest opens a pending request against an existing, unrevoked document.
func (s *Service) CreateRequest(ctx context.Context, documentID int64, caller shared.Principal) (Request, error) {
	if caller.IsZero() {
		return Request{}, shared.ErrInvalidPrincipal
	}
	var (
		req   Request
		entry audit.Entry
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.docs.Get(ctx, documentID)
		if errors.Is(err, documents.ErrNotFound) {
			return ErrDocumentNotFound
		}
		if err != nil {
			return err
		}
		if doc.Revoked {
			return ErrDocumentRevoked
		}
		id, err := s.seq.Next(ctx, sequence.Requests)
		if err != nil {
			return err
		}
		req = Request{
			ID:          id,
			DocumentID:  documentID,
			RequestedBy: caller,
			CreatedAt:   s.clock(),
			Status:      StatusPending,
		}
		if err := s.repo.Insert(ctx, req); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindRequestCreated, Entity: audit.EntityRequest, EntityID: idString(id),
			Actor: caller, At: req.CreatedAt,
			Meta: map[string]any{"document_id": documentID},
		})
		return err
	})
	if err != nil {
		return Request{}, err
	}
	s.audit.Dispatch(ctx, entry)
	return req, nil
}

// Approve records caller's vote. The vote that first brings the count to the
// live threshold moves the request to Approved and is the only one logged as
// VERIFICATION_APPROVED; later votes are recorded but change nothing else.
func (s *Service) Approve(ctx context.Context, requestID int64, caller shared.Principal) (ApproveResult, error) {
	var (
		res   ApproveResult
		entry audit.Entry
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// config before the request row, the same order threshold changes lock in
		threshold, err := s.signers.Threshold(ctx)
		if err != nil {
			return err
		}
		req, err := s.repo.Get(ctx, requestID, true)
		if err != nil {
			return err
		}
		eligible, err := s.signers.IsSigner(ctx, caller)
		if err != nil {
			return err
		}
		if caller.IsZero() || !eligible {
			return ErrNotEligibleSigner
		}
		voted, err := s.repo.HasApproved(ctx, requestID, caller)
		if err != nil {
			return err
		}
		if voted {
			return ErrAlreadyApproved
		}

		now := s.clock()
		req.ApprovalCount++
		if err := s.repo.AddApproval(ctx, Approval{
			RequestID: requestID, Signer: caller, Position: req.ApprovalCount, ApprovedAt: now,
		}); err != nil {
			return err
		}
		completed := req.Status == StatusPending && req.ApprovalCount >= threshold
		if completed {
			req.Status = StatusApproved
			req.ApprovedAt = &now
		}
		if err := s.repo.UpdateProgress(ctx, req); err != nil {
			return err
		}

		kind := audit.KindApprovalRecorded
		if completed {
			kind = audit.KindRequestApproved
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: kind, Entity: audit.EntityRequest, EntityID: idString(requestID),
			Actor: caller, At: now,
			Meta: map[string]any{
				"document_id": req.DocumentID,
				"approvals":   req.ApprovalCount,
				"threshold":   threshold,
			},
		})
		if err != nil {
			return err
		}
		res = ApproveResult{Request: req, Threshold: threshold, Completed: completed}
		return nil
	})
	if err != nil {
		return ApproveResult{}, err
	}
	if res.Completed {
		s.logger.Info("verification approved",
			slog.Int64("request_id", requestID),
			slog.Int("approvals", res.Request.ApprovalCount),
		)
	}
	s.audit.Dispatch(ctx, entry)
	return res, nil
}

// ThresholdLowered completes every pending request whose count already meets
// threshold. It runs inside the transaction that lowered the threshold, which
// holds the signer config lock.
func (s *Service) ThresholdLowered(ctx context.Context, threshold int, caller shared.Principal) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		reached, err := s.repo.PendingAtLeast(ctx, threshold)
		if err != nil {
			return err
		}
		now := s.clock()
		for _, req := range reached {
			req.Status = StatusApproved
			req.ApprovedAt = &now
			if err := s.repo.UpdateProgress(ctx, req); err != nil {
				return err
			}
			entry, err := s.audit.Record(ctx, audit.Entry{
				Kind: audit.KindRequestApproved, Entity: audit.EntityRequest, EntityID: idString(req.ID),
				Actor: caller, At: now,
				Meta: map[string]any{
					"document_id": req.DocumentID,
					"approvals":   req.ApprovalCount,
					"threshold":   threshold,
					"trigger":     "threshold_lowered",
				},
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns the request.
func (s *Service) Get(ctx context.Context, requestID int64) (Request, error) {
	return s.repo.Get(ctx, requestID, false)
}

// Status returns the request status.
func (s *Service) Status(ctx context.Context, requestID int64) (Status, error) {
	req, err := s.repo.Get(ctx, requestID, false)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

// ApprovalCount returns the number of distinct votes on the request.
func (s *Service) ApprovalCount(ctx context.Context, requestID int64) (int, error) {
	req, err := s.repo.Get(ctx, requestID, false)
	if err != nil {
		return 0, err
	}
	return req.ApprovalCount, nil
}

// RequestsOf returns one page of the document's requests, oldest first.
func (s *Service) RequestsOf(ctx context.Context, documentID int64, page shared.Page) (RequestList, error) {
	if _, err := s.docs.Get(ctx, documentID); err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			return RequestList{}, ErrDocumentNotFound
		}
		return RequestList{}, err
	}
	page = shared.NewPage(page.Page, page.PerPage)
	reqs, total, err := s.repo.ListByDocument(ctx, documentID, page)
	if err != nil {
		return RequestList{}, err
	}
	return RequestList{Requests: reqs, Paging: shared.NewPagination(page, total)}, nil
}

// Approvals returns one page of votes in casting order.
func (s *Service) Approvals(ctx context.Context, requestID int64, page shared.Page) (ApprovalList, error) {
	if _, err := s.repo.Get(ctx, requestID, false); err != nil {
		return ApprovalList{}, err
	}
	page = shared.NewPage(page.Page, page.PerPage)
	votes, total, err := s.repo.Approvals(ctx, requestID, page)
	if err != nil {
		return ApprovalList{}, err
	}
	return ApprovalList{Approvals: votes, Paging: shared.NewPagination(page, total)}, nil
}

// MaxID returns the highest stored request id.
func (s *Service) MaxID(ctx context.Context) (int64, error) {
	return s.repo.MaxID(ctx)
}
