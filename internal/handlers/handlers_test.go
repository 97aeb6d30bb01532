package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"finitefield.org/templates-listing/internal/listing"
	custommw "finitefield.org/templates-listing/internal/middleware"
)

func TestWriteErrorNegotiatesFormat(t *testing.T) {
	t.Parallel()

	htmx := custommw.HTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusBadRequest, "invalid gen")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("HX-Request", "true")
	htmx.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":"invalid gen"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	htmx.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid gen\n", rec.Body.String())
}

func TestIgnorable(t *testing.T) {
	t.Parallel()

	require.True(t, ignorable(listing.ErrStale))
	require.True(t, ignorable(fmt.Errorf("flip: %w", listing.ErrNotReady)))
	require.False(t, ignorable(listing.ErrPageOutOfRange))
	require.False(t, ignorable(nil))
}

func TestFragmentWithoutSessionIsNotFound(t *testing.T) {
	t.Parallel()

	h := NewHandlers(Dependencies{})
	router := chi.NewRouter()
	router.Get("/p/{pageID}/preview", h.Preview)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/p/unknown/preview", nil).WithContext(context.Background())
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaths(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/p/abc/blocks/block-1", blockPath("abc", "block-1"))
	require.Equal(t, "/p/abc/preview", previewURL("abc"))
	require.Equal(t, "/p/abc/preview/close", closeURL("abc"))
}
