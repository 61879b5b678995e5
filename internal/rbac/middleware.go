package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/trustledger/internal/platform/httpx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// RoleChecker answers membership questions for HTTP gating.
type RoleChecker interface {
	HasAnyRole(ctx context.Context, principal shared.Principal, roles ...Role) (bool, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Roles  RoleChecker
	Logger *slog.Logger
}

// RequireRole ensures the caller holds at least one of roles.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if len(roles) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, err := m.Roles.HasAnyRole(r.Context(), caller, roles...)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require role", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !granted {
				httpx.RespondError(w, missingRole(roles))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func missingRole(roles []Role) error {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return shared.NewError(shared.ErrUnauthorized, "missing_role", "requires one of: "+strings.Join(names, ", "))
}
