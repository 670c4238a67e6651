package api

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"todo-api/storage"
)

func gzipBody(t *testing.T, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(body)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return &buf
}

func TestGzipRequestMiddlewareDecodesBody(t *testing.T) {
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	Register(e, storage.NewMemory(), nil)

	req := httptest.NewRequest(http.MethodPost, "/todoitems", gzipBody(t, `{"name":"zipped","isComplete":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"name":"zipped"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestGzipRequestMiddlewareRejectsInvalidGzip(t *testing.T) {
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	Register(e, storage.NewMemory(), nil)

	req := httptest.NewRequest(http.MethodPost, "/todoitems", strings.NewReader(`{"name":"plain"}`))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestHasGzipEncoding(t *testing.T) {
	tests := map[string]bool{
		"":              false,
		"gzip":          true,
		"GZIP":          true,
		"deflate, gzip": true,
		"br":            false,
	}
	for header, want := range tests {
		if got := hasGzipEncoding(header); got != want {
			t.Fatalf("hasGzipEncoding(%q) = %v, want %v", header, got, want)
		}
	}
}

func TestRequestIDSetsUUIDHeader(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	Register(e, storage.NewMemory(), nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	id := rec.Header().Get(echo.HeaderXRequestID)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected uuid request id, got %q: %v", id, err)
	}
}

func TestRequestIDKeepsClientValue(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	Register(e, storage.NewMemory(), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(echo.HeaderXRequestID, "client-id")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderXRequestID); got != "client-id" {
		t.Fatalf("expected client request id to be echoed, got %q", got)
	}
}
