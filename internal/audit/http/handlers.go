package audithttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/platform/httpx"
	"github.com/odyssey-erp/trustledger/internal/rbac"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

// maxExportRows bounds a single CSV export.
const maxExportRows = 10000

// HistoryService defines the business contract for audit history.
type HistoryService interface {
	History(ctx context.Context, filters audit.Filters) (audit.Result, error)
}

// Guard produces role-gating middleware.
type Guard interface {
	RequireRole(roles ...rbac.Role) func(http.Handler) http.Handler
}

// Handler menangani permintaan audit history.
type Handler struct {
	logger  *slog.Logger
	service HistoryService
	guard   Guard
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service HistoryService, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.History(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if result.Entries == nil {
		result.Entries = []audit.Entry{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.collect(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit.csv\"")
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"seq", "at", "kind", "entity", "entity_id", "actor", "meta"})
	for _, e := range rows {
		meta := ""
		if len(e.Meta) > 0 {
			if b, err := json.Marshal(e.Meta); err == nil {
				meta = string(b)
			}
		}
		_ = cw.Write([]string{
			strconv.FormatInt(e.Seq, 10),
			e.At.UTC().Format("2006-01-02T15:04:05Z07:00"),
			string(e.Kind),
			e.Entity,
			e.EntityID,
			e.Actor.String(),
			meta,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// collect walks the filtered history by sequence cursor.
func (h *Handler) collect(ctx context.Context, filters audit.Filters) ([]audit.Entry, error) {
	var rows []audit.Entry
	filters.Page = shared.NewPage(1, shared.MaxPerPage)
	for len(rows) < maxExportRows {
		result, err := h.service.History(ctx, filters)
		if err != nil {
			return nil, err
		}
		rows = append(rows, result.Entries...)
		if len(result.Entries) < filters.Page.PerPage {
			break
		}
		filters.AfterSeq = result.Entries[len(result.Entries)-1].Seq
	}
	if len(rows) > maxExportRows {
		rows = rows[:maxExportRows]
	}
	return rows, nil
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	page, err := httpx.PageFromQuery(r)
	if err != nil {
		return audit.Filters{}, err
	}
	filters := audit.Filters{
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entity_id")),
		Actor:    shared.ParsePrincipal(q.Get("actor")),
		Kind:     audit.Kind(strings.ToUpper(strings.TrimSpace(q.Get("kind")))),
		Page:     page,
	}
	if v := strings.TrimSpace(q.Get("after_seq")); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil || seq < 0 {
			return audit.Filters{}, shared.NewError(shared.ErrValidation, "invalid_after_seq", "after_seq must be a non-negative integer")
		}
		filters.AfterSeq = seq
	}
	return filters, nil
}
