package signers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/trustledger/internal/platform/httpx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Handler exposes signer-set endpoints.
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

// MountRoutes registers signer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/signers", func(r chi.Router) {
		r.Get("/", h.snapshot)
		r.Post("/", h.add)
		r.Put("/threshold", h.setThreshold)
		r.Delete("/{principal}", h.remove)
	})
}

type addRequest struct {
	Principal string `json:"principal" validate:"required"`
}

type thresholdRequest struct {
	Threshold int `json:"threshold" validate:"required,min=1"`
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.fail(w, "signer snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req addRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := shared.ParsePrincipal(req.Principal)
	if err := h.service.AddSigner(r.Context(), principal, caller); err != nil {
		h.fail(w, "add signer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"principal": principal})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := shared.ParsePrincipal(chi.URLParam(r, "principal"))
	if err := h.service.RemoveSigner(r.Context(), principal, caller); err != nil {
		h.fail(w, "remove signer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setThreshold(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req thresholdRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetThreshold(r.Context(), req.Threshold, caller); err != nil {
		h.fail(w, "set threshold", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"threshold": req.Threshold})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.CodeOf(err) == "" {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
