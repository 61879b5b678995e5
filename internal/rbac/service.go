package rbac

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Service maintains role memberships and the distinguished admin authority.
type Service struct {
	tx     shared.TxManager
	repo   Repository
	audit  *audit.Recorder
	clock  shared.Clock
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(tx shared.TxManager, repo Repository, recorder *audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, repo: repo, audit: recorder, clock: shared.SystemClock, logger: logger}
}

// Initialize installs admin as the root of trust. Once an admin exists the call
// is a no-op, so restarts keep the transferred authority.
func (s *Service) Initialize(ctx context.Context, admin shared.Principal) error {
	if admin.IsZero() {
		return shared.ErrInvalidPrincipal
	}
	var entries []audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, ok, err := s.repo.Admin(ctx, true)
		if err != nil {
			return err
		}
		if ok {
			if current != admin {
				s.logger.Info("rbac: admin already initialised", slog.String("admin", current.String()))
			}
			return nil
		}
		now := s.clock()
		if err := s.repo.SetAdmin(ctx, admin, now); err != nil {
			return err
		}
		if _, err := s.repo.Grant(ctx, RoleAdmin, admin, now); err != nil {
			return err
		}
		entry, err := s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindAdminInitialized, Entity: audit.EntityAdmin, EntityID: admin.String(),
			Actor: admin, At: now,
		})
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.Dispatch(ctx, entries...)
	return nil
}

// GrantRole adds principal to role. Granting a held role succeeds without
// writing anything.
func (s *Service) GrantRole(ctx context.Context, role Role, principal, caller shared.Principal) error {
	return s.changeRole(ctx, role, principal, caller, true)
}

// RevokeRole removes principal from role. Revoking an absent role succeeds
// without writing anything.
func (s *Service) RevokeRole(ctx context.Context, role Role, principal, caller shared.Principal) error {
	return s.changeRole(ctx, role, principal, caller, false)
}

func (s *Service) changeRole(ctx context.Context, role Role, principal, caller shared.Principal, grant bool) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	if principal.IsZero() || caller.IsZero() {
		return shared.ErrInvalidPrincipal
	}
	var entry audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireAdminRole(ctx, caller); err != nil {
			return err
		}
		var (
			changed bool
			err     error
			kind    = audit.KindRoleGranted
		)
		if grant {
			changed, err = s.repo.Grant(ctx, role, principal, s.clock())
		} else {
			kind = audit.KindRoleRevoked
			if role == RoleAdmin {
				current, _, aerr := s.repo.Admin(ctx, true)
				if aerr != nil {
					return aerr
				}
				if current == principal {
					return ErrAdminAuthorityRole
				}
			}
			changed, err = s.repo.Revoke(ctx, role, principal)
		}
		if err != nil || !changed {
			return err
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: kind, Entity: audit.EntityRole, EntityID: string(role), Actor: caller,
			Meta: map[string]any{"principal": principal.String()},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Dispatch(ctx, entry)
	return nil
}

// TransferAdminAuthority hands the distinguished authority to newAdmin and
// grants it the Admin role. The outgoing admin keeps its Admin role.
func (s *Service) TransferAdminAuthority(ctx context.Context, newAdmin, caller shared.Principal) error {
	if newAdmin.IsZero() {
		return shared.ErrInvalidPrincipal
	}
	var entry audit.Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, ok, err := s.repo.Admin(ctx, true)
		if err != nil {
			return err
		}
		if !ok || caller.IsZero() || current != caller {
			return ErrNotAdminAuthority
		}
		if newAdmin == current {
			return nil
		}
		now := s.clock()
		if err := s.repo.SetAdmin(ctx, newAdmin, now); err != nil {
			return err
		}
		if _, err := s.repo.Grant(ctx, RoleAdmin, newAdmin, now); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, audit.Entry{
			Kind: audit.KindAdminTransferred, Entity: audit.EntityAdmin, EntityID: newAdmin.String(),
			Actor: caller, At: now,
			Meta: map[string]any{"from": current.String(), "to": newAdmin.String()},
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Dispatch(ctx, entry)
	return nil
}

// HasRole reports whether principal holds role. Inside WithinTx the answer is
// consistent with the rest of the transaction.
func (s *Service) HasRole(ctx context.Context, role Role, principal shared.Principal) (bool, error) {
	if principal.IsZero() || !role.Valid() {
		return false, nil
	}
	return s.repo.HasRole(ctx, role, principal)
}

// HasAnyRole reports whether principal holds at least one of roles.
func (s *Service) HasAnyRole(ctx context.Context, principal shared.Principal, roles ...Role) (bool, error) {
	for _, role := range roles {
		ok, err := s.HasRole(ctx, role, principal)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// MembersOf lists the principals holding role, sorted.
func (s *Service) MembersOf(ctx context.Context, role Role) ([]shared.Principal, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return s.repo.Members(ctx, role)
}

// RolesOf lists the roles principal holds.
func (s *Service) RolesOf(ctx context.Context, principal shared.Principal) ([]Role, error) {
	if principal.IsZero() {
		return nil, shared.ErrInvalidPrincipal
	}
	return s.repo.RolesOf(ctx, principal)
}

// Admin returns the distinguished admin.
func (s *Service) Admin(ctx context.Context) (shared.Principal, error) {
	p, ok, err := s.repo.Admin(ctx, false)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotInitialized
	}
	return p, nil
}

func (s *Service) requireAdminRole(ctx context.Context, caller shared.Principal) error {
	ok, err := s.repo.HasRole(ctx, RoleAdmin, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
