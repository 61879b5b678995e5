package documents

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/trustledger/internal/platform/httpx"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// Handler exposes the document registry over HTTP.
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

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents", h.register)
	r.Get("/documents/by-fingerprint/{fingerprint}", h.byFingerprint)
	r.Get("/documents/{id}", h.get)
	r.Get("/documents/{id}/valid", h.valid)
	r.Post("/documents/{id}/revoke", h.revoke)
	r.Get("/principals/{principal}/documents", h.documentsOf)
}

type registerRequest struct {
	Fingerprint  string `json:"fingerprint" validate:"required"`
	Locator      string `json:"locator" validate:"required"`
	DisplayName  string `json:"display_name" validate:"required"`
	DocumentType string `json:"document_type"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	fp, err := ParseFingerprint(req.Fingerprint)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Register(r.Context(), RegisterInput{
		Fingerprint:  fp,
		Locator:      req.Locator,
		DisplayName:  req.DisplayName,
		DocumentType: req.DocumentType,
	}, caller)
	if err != nil {
		h.fail(w, "register document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) valid(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ok, err := h.service.IsValid(r.Context(), id)
	if err != nil {
		h.fail(w, "document validity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "valid": ok})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.Caller(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Revoke(r.Context(), id, caller); err != nil {
		h.fail(w, "revoke document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) byFingerprint(w http.ResponseWriter, r *http.Request) {
	fp, err := ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, ok, err := h.service.ByFingerprint(r.Context(), fp)
	if err != nil {
		h.fail(w, "lookup fingerprint", err)
		return
	}
	if !ok {
		httpx.RespondError(w, ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "fingerprint": fp})
}

func (h *Handler) documentsOf(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.PageFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	owner := shared.ParsePrincipal(chi.URLParam(r, "principal"))
	res, err := h.service.DocumentsOf(r.Context(), owner, page)
	if err != nil {
		h.fail(w, "list documents", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.CodeOf(err) == "" {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
