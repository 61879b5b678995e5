package documents

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

func TestHandlerRegisterAndRevoke(t *testing.T) {
	f := newFixture(t, Options{})
	r := chi.NewRouter()
	NewHandler(nil, f.svc).MountRoutes(r)

	fp := fill(0xAA).String()
	body := `{"fingerprint":"` + fp + `","locator":"cid:Qm123","display_name":"Diploma","document_type":"certificate"}`

	rr := serve(t, r, http.MethodPost, "/documents", "", body)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(t, r, http.MethodPost, "/documents", "O", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	var doc Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	require.Equal(t, int64(1), doc.ID)
	require.Equal(t, fill(0xAA), doc.Fingerprint)

	rr = serve(t, r, http.MethodPost, "/documents", "O", body)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "duplicate_fingerprint")

	rr = serve(t, r, http.MethodPost, "/documents", "O", `{"fingerprint":"0x12","locator":"x","display_name":"y"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, r, http.MethodGet, "/documents/by-fingerprint/"+fp, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"id":1`)

	rr = serve(t, r, http.MethodPost, "/documents/1/revoke", "P", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, r, http.MethodPost, "/documents/1/revoke", "O", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(t, r, http.MethodPost, "/documents/1/revoke", "O", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, r, http.MethodGet, "/documents/1/valid", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"valid":false`)

	rr = serve(t, r, http.MethodGet, "/documents/9", "", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(t, r, http.MethodGet, "/documents/abc", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, r, http.MethodGet, "/principals/O/documents?per_page=10", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list ListResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Documents, 1)
	require.Equal(t, 1, list.Paging.Total)
}
