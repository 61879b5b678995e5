package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/shared"
)

func TestRespondErrorMapsCategories(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.NewError(shared.ErrValidation, "invalid_input", "bad"), http.StatusBadRequest},
		{shared.NewError(shared.ErrNotFound, "document_not_found", "missing"), http.StatusNotFound},
		{shared.NewError(shared.ErrUnauthorized, "not_owner", "nope"), http.StatusForbidden},
		{shared.NewError(shared.ErrConflict, "duplicate_fingerprint", "dup"), http.StatusConflict},
		{shared.NewError(shared.ErrInvariant, "threshold_unreachable", "too few"), http.StatusUnprocessableEntity},
		{fmt.Errorf("repo: %w", shared.ErrUnavailable), http.StatusServiceUnavailable},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
	}

	rr := httptest.NewRecorder()
	RespondError(rr, shared.NewError(shared.ErrConflict, "duplicate_locator", "dup"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "duplicate_locator", body.Type)
}

func TestDecodeJSONValidates(t *testing.T) {
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	var p payload
	err := DecodeJSON(req, &p)
	require.ErrorIs(t, err, shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	require.ErrorIs(t, DecodeJSON(req, &p), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, DecodeJSON(req, &p))
	require.Equal(t, "x", p.Name)
}

func TestPageFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=2&per_page=500", nil)
	page, err := PageFromQuery(req)
	require.NoError(t, err)
	require.Equal(t, 2, page.Page)
	require.Equal(t, shared.MaxPerPage, page.PerPage)

	req = httptest.NewRequest(http.MethodGet, "/?page=x", nil)
	_, err = PageFromQuery(req)
	require.ErrorIs(t, err, shared.ErrValidation)
}
