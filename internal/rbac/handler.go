package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/trustledger/internal/platform/httpx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Handler exposes role and admin endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles/{role}/members", h.listMembers)
	r.Put("/roles/{role}/members/{principal}", h.grant)
	r.Delete("/roles/{role}/members/{principal}", h.revoke)
	r.Get("/principals/{principal}/roles", h.rolesOf)
	r.Get("/admin", h.admin)
	r.Post("/admin/transfer", h.transfer)
}

type transferRequest struct {
	NewAdmin string `json:"new_admin" validate:"required"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	members, err := h.service.MembersOf(r.Context(), role)
	if err != nil {
		h.fail(w, "list role members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "members": members})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, true)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, false)
}

func (h *Handler) change(w http.ResponseWriter, r *http.Request, grant bool) {
	caller, err := httpx.Caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := shared.ParsePrincipal(chi.URLParam(r, "principal"))
	if grant {
		err = h.service.GrantRole(r.Context(), role, principal, caller)
	} else {
		err = h.service.RevokeRole(r.Context(), role, principal, caller)
	}
	if err != nil {
		h.fail(w, "change role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolesOf(w http.ResponseWriter, r *http.Request) {
	principal := shared.ParsePrincipal(chi.URLParam(r, "principal"))
	roles, err := h.service.RolesOf(r.Context(), principal)
	if err != nil {
		h.fail(w, "roles of", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"principal": principal, "roles": roles})
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	admin, err := h.service.Admin(r.Context())
	if err != nil {
		h.fail(w, "load admin", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"admin": admin})
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.TransferAdminAuthority(r.Context(), shared.ParsePrincipal(req.NewAdmin), caller); err != nil {
		h.fail(w, "transfer admin", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.CodeOf(err) == "" {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
