package signers

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/rbac"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// RoleChecker is the slice of the role registry the signer set consults.
type RoleChecker interface {
	HasRole(ctx context.Context, role rbac.Role, principal shared.Principal) (bool, error)
}

// ThresholdListener reacts to a lowered threshold inside the transaction that
// lowers it and returns the audit entries it recorded.
type ThresholdListener interface {
	ThresholdLowered(ctx context.Context, threshold int, caller shared.Principal) ([]audit.Entry, error)
}

// Service manages the signer set. Membership changes and threshold changes
// lock the config row exclusively, so they serialise with each other and with
// approvals that read it.
type Service struct {
	tx     shared.TxManager
	repo   Repository
	roles  RoleChecker
	audit  *audit.Recorder
	clock  shared.Clock
	logger *slog.Logger

	listener ThresholdListener
}

// NewService constructs a Service.
func NewService(tx shared.TxManager, repo Repository, roles RoleChecker, recorder *audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, repo: repo, roles: roles, audit: recorder, clock: shared.SystemClock, logger: logger}
}

// OnThresholdLowered registers l to run whenever SetThreshold lowers the bar.
func (s *Service) OnThresholdLowered(l ThresholdListener) {
	s.listener = l
}

// Initialize installs the first signer set. It fails InvalidConfiguration unless
// 1 <= threshold <= |signers| and is a no-op once a set exists.
func (s *Service) Initialize(ctx context.Context, members []shared.Principal, threshold int, actor shared.Principal) error {
	set := dedupe(members)
	for _, p := range set {
		if p.IsZero() {
			return shared.ErrInvalidPrincipal
		}
	}
	if !validConfig(len(set), threshold) {
		return ErrInvalidConfiguration
	}
	var entry audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, ok, err := s.repo.Threshold(ctx, true)
		if err != nil {
			return err
		}
		if ok {
			s.logger.Info("signers: set already initialised")
			return nil
		}
		now := s.clock()
		for _, p := range set {
			if _, err := s.repo.Add(ctx, p, now); err != nil {
				return err
			}
		}
		if err := s.repo.SetThreshold(ctx, threshold, now); err != nil {
			return err
		}
		names := make([]string, len(set))
		for i, p := range set {
			names[i] = p.String()
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindSignerSetInitialized, Entity: audit.EntitySignerSet, EntityID: "signers",
			Actor: actor, At: now,
			Meta: map[string]any{"signers": names, "threshold": threshold},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Dispatch(ctx, entry)
	return nil
}

// AddSigner adds principal. Only a current signer or an Admin may call it.
func (s *Service) AddSigner(ctx context.Context, principal, caller shared.Principal) error {
	if principal.IsZero() {
		return shared.ErrInvalidPrincipal
	}
	var entry audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockConfig(ctx); err != nil {
			return err
		}
		if err := s.authorizeMembership(ctx, caller); err != nil {
			return err
		}
		added, err := s.repo.Add(ctx, principal, s.clock())
		if err != nil {
			return err
		}
		if !added {
			return ErrDuplicateSigner
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindSignerAdded, Entity: audit.EntitySigner, EntityID: principal.String(), Actor: caller,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Dispatch(ctx, entry)
	return nil
}

// RemoveSigner removes principal unless that would leave fewer signers than
// the threshold. The threshold is never lowered to make room.
func (s *Service) RemoveSigner(ctx context.Context, principal, caller shared.Principal) error {
	if principal.IsZero() {
		return shared.ErrInvalidPrincipal
	}
	var entry audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		threshold, err := s.lockConfig(ctx)
		if err != nil {
			return err
		}
		if err := s.authorizeMembership(ctx, caller); err != nil {
			return err
		}
		ok, err := s.repo.IsSigner(ctx, principal)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotASigner
		}
		count, err := s.repo.Count(ctx)
		if err != nil {
			return err
		}
		if count-1 < threshold {
			return ErrThresholdUnreachable
		}
		if _, err := s.repo.Remove(ctx, principal); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindSignerRemoved, Entity: audit.EntitySigner, EntityID: principal.String(), Actor: caller,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Dispatch(ctx, entry)
	return nil
}

// SetThreshold changes the threshold. A lowered threshold is handed to the
// registered listener in the same transaction, so requests that already meet
// it complete with the change.
func (s *Service) SetThreshold(ctx context.Context, threshold int, caller shared.Principal) error {
	var entries []audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.lockConfig(ctx)
		if err != nil {
			return err
		}
		admin, err := s.roles.HasRole(ctx, rbac.RoleAdmin, caller)
		if err != nil {
			return err
		}
		if !admin {
			return ErrThresholdUnauthorized
		}
		count, err := s.repo.Count(ctx)
		if err != nil {
			return err
		}
		if !validConfig(count, threshold) {
			return ErrInvalidConfiguration
		}
		if threshold == current {
			return nil
		}
		if err := s.repo.SetThreshold(ctx, threshold, s.clock()); err != nil {
			return err
		}
		entry, err := s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindThresholdChanged, Entity: audit.EntitySignerSet, EntityID: "threshold", Actor: caller,
			Meta: map[string]any{"from": current, "to": threshold},
		})
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		if threshold < current && s.listener != nil {
			completed, err := s.listener.ThresholdLowered(ctx, threshold, caller)
			if err != nil {
				return err
			}
			entries = append(entries, completed...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.Dispatch(ctx, entries...)
	return nil
}

// IsSigner reports current membership.
func (s *Service) IsSigner(ctx context.Context, principal shared.Principal) (bool, error) {
	if principal.IsZero() {
		return false, nil
	}
	return s.repo.IsSigner(ctx, principal)
}

// Threshold returns the live threshold.
func (s *Service) Threshold(ctx context.Context) (int, error) {
	t, ok, err := s.repo.Threshold(ctx, false)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotInitialized
	}
	return t, nil
}

// Snapshot returns members and threshold from one consistent read.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.Threshold(ctx)
		if err != nil {
			return err
		}
		list, err := s.repo.List(ctx)
		if err != nil {
			return err
		}
		snap = Snapshot{Signers: list, Threshold: t}
		return nil
	})
	return snap, err
}

func (s *Service) lockConfig(ctx context.Context) (int, error) {
	t, ok, err := s.repo.Threshold(ctx, true)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotInitialized
	}
	return t, nil
}

func (s *Service) authorizeMembership(ctx context.Context, caller shared.Principal) error {
	if caller.IsZero() {
		return ErrUnauthorized
	}
	ok, err := s.repo.IsSigner(ctx, caller)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	ok, err = s.roles.HasRole(ctx, rbac.RoleAdmin, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func dedupe(in []shared.Principal) []shared.Principal {
	seen := make(map[shared.Principal]struct{}, len(in))
	out := make([]shared.Principal, 0, len(in))
	for _, p := range in {
		p = shared.ParsePrincipal(p.String())
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
