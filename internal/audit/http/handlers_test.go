package audithttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/audit"
	"github.com/odyssey-erp/trustledger/internal/platform/memtx"
	"github.com/odyssey-erp/trustledger/internal/platform/sequence"
	"github.com/odyssey-erp/trustledger/internal/rbac"
	"github.com/odyssey-erp/trustledger/internal/shared"
)

type stubRoles map[shared.Principal][]rbac.Role

func (s stubRoles) HasAnyRole(_ context.Context, p shared.Principal, roles ...rbac.Role) (bool, error) {
	for _, held := range s[p] {
		for _, want := range roles {
			if held == want {
				return true, nil
			}
		}
	}
	return false, nil
}

func newAuditRouter(t *testing.T, n int) http.Handler {
	t.Helper()
	tx := memtx.New()
	rec := audit.NewRecorder(audit.NewMemoryRepository(tx), sequence.NewMemory(tx), nil, nil)
	for i := 0; i < n; i++ {
		kind := audit.KindDocumentRegistered
		if i%2 == 1 {
			kind = audit.KindRequestCreated
		}
		_, err := rec.Record(context.Background(), audit.Entry{
			Kind: kind, Entity: audit.EntityDocument, EntityID: "1", Actor: "owner",
			Meta: map[string]any{"n": i},
		})
		require.NoError(t, err)
	}
	guard := rbac.Middleware{Roles: stubRoles{"auditor": {rbac.RoleAuditor}, "root": {rbac.RoleAdmin}}}
	r := chi.NewRouter()
	NewHandler(nil, rec, guard).MountRoutes(r)
	return r
}

func get(h http.Handler, path string, caller shared.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if !caller.IsZero() {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), caller))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHistoryRequiresAuditorOrAdmin(t *testing.T) {
	r := newAuditRouter(t, 1)

	require.Equal(t, http.StatusUnauthorized, get(r, "/audit", "").Code)
	require.Equal(t, http.StatusForbidden, get(r, "/audit", "owner").Code)
	require.Equal(t, http.StatusOK, get(r, "/audit", "auditor").Code)
	require.Equal(t, http.StatusOK, get(r, "/audit", "root").Code)
}

func TestHistoryFiltersAndPages(t *testing.T) {
	r := newAuditRouter(t, 5)

	rr := get(r, "/audit?kind=verification_requested&per_page=1&page=2", "auditor")
	require.Equal(t, http.StatusOK, rr.Code)
	var res audit.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Entries, 1)
	require.Equal(t, int64(4), res.Entries[0].Seq)
	require.Equal(t, 2, res.Paging.Total)

	rr = get(r, "/audit?after_seq=3", "auditor")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Entries, 2)

	require.Equal(t, http.StatusBadRequest, get(r, "/audit?after_seq=-1", "auditor").Code)
	require.Equal(t, http.StatusBadRequest, get(r, "/audit?page=x", "auditor").Code)
}

func TestExportCSV(t *testing.T) {
	r := newAuditRouter(t, shared.MaxPerPage+3)

	rr := get(r, "/audit/export.csv", "root")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/csv")

	records, err := csv.NewReader(strings.NewReader(rr.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, shared.MaxPerPage+3+1)
	require.Equal(t, "seq", records[0][0])
	require.Equal(t, "1", records[1][0])
	require.Equal(t, `{"n":0}`, records[1][6])
}
