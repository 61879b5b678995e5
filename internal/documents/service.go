package documents

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/platform/sequence"
	"github.com/odyssey-erp/trustledger/internal/rbac"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// RoleChecker is the slice of the role registry registration gating needs.
type RoleChecker interface {
	HasAnyRole(ctx context.Context, principal shared.Principal, roles ...rbac.Role) (bool, error)
}

// Options tunes optional policy.
type Options struct {
	// RequireRegistrarRole restricts Register to DocumentManager and Admin holders.
	RequireRegistrarRole bool
}

// Service is the document registry.
type Service struct {
	tx     shared.TxManager
	repo   Repository
	seq    shared.Sequencer
	roles  RoleChecker
	audit  *audit.Recorder
	opts   Options
	clock  shared.Clock
	logger *slog.Logger
}

// NewService constructs a Service. roles may be nil when registration is open.
func NewService(tx shared.TxManager, repo Repository, seq shared.Sequencer, roles RoleChecker, recorder *audit.Recorder, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tx:     tx,
		repo:   repo,
		seq:    seq,
		roles:  roles,
		audit:  recorder,
		opts:   opts,
		clock:  shared.SystemClock,
		logger: logger,
	}
}

// Register records a new document owned by caller and returns it with its id.
func (s *Service) Register(ctx context.Context, in RegisterInput, caller shared.Principal) (Document, error) {
	if caller.IsZero() {
		return Document{}, shared.ErrInvalidPrincipal
	}
	in.Locator = NormalizeLocator(in.Locator)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.DocumentType = strings.TrimSpace(in.DocumentType)
	if in.Fingerprint.IsZero() || in.Locator == "" || in.DisplayName == "" {
		return Document{}, ErrInvalidInput
	}

	var (
		doc   Document
		entry audit.Entry
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.authorizeRegistration(ctx, caller); err != nil {
			return err
		}
		if _, taken, err := s.repo.ByFingerprint(ctx, in.Fingerprint); err != nil {
			return err
		} else if taken {
			return ErrDuplicateFingerprint
		}
		if _, taken, err := s.repo.ByLocator(ctx, in.Locator); err != nil {
			return err
		} else if taken {
			return ErrDuplicateLocator
		}
		id, err := s.seq.Next(ctx, sequence.Documents)
		if err != nil {
			return err
		}
		doc = Document{
			ID:           id,
			Owner:        caller,
			Fingerprint:  in.Fingerprint,
			Locator:      in.Locator,
			DisplayName:  in.DisplayName,
			DocumentType: in.DocumentType,
			CreatedAt:    s.clock(),
		}
		if err := s.repo.Insert(ctx, doc); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindDocumentRegistered, Entity: audit.EntityDocument, EntityID: idString(id),
			Actor: caller, At: doc.CreatedAt,
			Meta: map[string]any{"fingerprint": doc.Fingerprint.String(), "locator": doc.Locator},
		})
		return err
	})
	if err != nil {
		return Document{}, err
	}
	s.audit.Dispatch(ctx, entry)
	return doc, nil
}

// Revoke marks the document revoked. Only the owner may revoke, and only once.
func (s *Service) Revoke(ctx context.Context, id int64, caller shared.Principal) error {
	var entry audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		doc, err := s.repo.Get(ctx, id, true)
		if err != nil {
			return err
		}
		if caller.IsZero() || doc.Owner != caller {
			return ErrNotOwner
		}
		if doc.Revoked {
			return ErrAlreadyRevoked
		}
		now := s.clock()
		if err := s.repo.MarkRevoked(ctx, id, now); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindDocumentRevoked, Entity: audit.EntityDocument, EntityID: idString(id),
			Actor: caller, At: now,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Dispatch(ctx, entry)
	return nil
}

// Get returns the document. Inside WithinTx the row stays share-locked until
// commit, so a concurrent revoke orders after the caller's transaction.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.Get(ctx, id, false)
}

// IsValid reports whether the document exists and is not revoked.
func (s *Service) IsValid(ctx context.Context, id int64) (bool, error) {
	doc, err := s.repo.Get(ctx, id, false)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !doc.Revoked, nil
}

// ByFingerprint returns the id registered under fp, if any.
func (s *Service) ByFingerprint(ctx context.Context, fp Fingerprint) (int64, bool, error) {
	return s.repo.ByFingerprint(ctx, fp)
}

// DocumentsOf returns one page of owner's documents in registration order.
func (s *Service) DocumentsOf(ctx context.Context, owner shared.Principal, page shared.Page) (ListResult, error) {
	page = shared.NewPage(page.Page, page.PerPage)
	docs, total, err := s.repo.ListByOwner(ctx, owner, page)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Documents: docs, Paging: shared.NewPagination(page, total)}, nil
}

// MaxID returns the highest stored document id.
func (s *Service) MaxID(ctx context.Context) (int64, error) {
	return s.repo.MaxID(ctx)
}

// NormalizeLocator trims the locator and brings it to Unicode NFC, so visually
// identical locators collide in the uniqueness check.
func NormalizeLocator(locator string) string {
	return norm.NFC.String(strings.TrimSpace(locator))
}

func (s *Service) authorizeRegistration(ctx context.Context, caller shared.Principal) error {
	if !s.opts.RequireRegistrarRole {
		return nil
	}
	if s.roles == nil {
		return ErrRegistrationDenied
	}
	ok, err := s.roles.HasAnyRole(ctx, caller, rbac.RoleDocumentManager, rbac.RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRegistrationDenied
	}
	return nil
}
