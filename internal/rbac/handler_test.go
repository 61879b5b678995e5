package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r, svc
}

func do(t *testing.T, h http.Handler, method, path string, caller shared.Principal, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if !caller.IsZero() {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), caller))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerGrantAndList(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, http.MethodPut, "/roles/verifier/members/V", admin, "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodGet, "/roles/Verifier/members", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Members []string `json:"members"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, []string{"V"}, body.Members)

	rr = do(t, h, http.MethodPut, "/roles/Auditor/members/Y", "X", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, h, http.MethodPut, "/roles/Auditor/members/Y", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodGet, "/roles/Owner/members", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerTransfer(t *testing.T) {
	h, svc := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/admin/transfer", admin, `{"new_admin":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/admin/transfer", admin, `{"new_admin":"N"}`)
	require.Equal(t, http.StatusNoContent, rr.Code)

	got, err := svc.Admin(context.Background())
	require.NoError(t, err)
	require.Equal(t, shared.Principal("N"), got)

	rr = do(t, h, http.MethodGet, "/principals/N/roles", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Admin")
}

func TestRequireRole(t *testing.T) {
	svc, _ := newTestService(t)
	mw := Middleware{Roles: svc}
	h := mw.RequireRole(RoleAuditor, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	require.Equal(t, http.StatusTeapot, do(t, h, http.MethodGet, "/", admin, "").Code)
	require.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/", "X", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/", "", "").Code)
}
