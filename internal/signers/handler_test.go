package signers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

func serve(t *testing.T, h http.Handler, method, path string, caller shared.Principal, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if !caller.IsZero() {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), caller))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerSignerLifecycle(t *testing.T) {
	f := newFixture(t, []shared.Principal{"A", "B"}, 2)
	r := chi.NewRouter()
	NewHandler(nil, f.svc).MountRoutes(r)

	rr := serve(t, r, http.MethodDelete, "/signers/B", "A", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = serve(t, r, http.MethodPost, "/signers", "A", `{"principal":"C"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(t, r, http.MethodPost, "/signers", "A", `{"principal":"C"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, r, http.MethodPut, "/signers/threshold", admin, `{"threshold":3}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, r, http.MethodPut, "/signers/threshold", admin, `{"threshold":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, r, http.MethodGet, "/signers", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Equal(t, 3, snap.Threshold)
	require.Equal(t, []shared.Principal{"A", "B", "C"}, snap.Signers)

	rr = serve(t, r, http.MethodPost, "/signers", "", `{"principal":"D"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
