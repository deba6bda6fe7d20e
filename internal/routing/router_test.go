package routing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	c, err := NewClassifier(serverAllowlist(), "server")
	if err != nil {
		t.Fatal(err)
	}
	return NewRouter(c)
}

func TestRouter_PanicBecomes500JSON(t *testing.T) {
	t.Parallel()

	r := testRouter(t)
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/compliance/api/panic", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/compliance/api/panic", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	r := testRouter(t)
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/compliance/api/rule-packs", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r.Handle(RouteClassInternalAPI, http.MethodPost, "/compliance/api/rule-packs", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/compliance/api/rule-packs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != "GET, POST" {
		t.Fatalf("allow=%q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
}

func TestRouter_NotFound(t *testing.T) {
	t.Parallel()

	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/meetings/api/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestEntrypointClass_Fallback(t *testing.T) {
	t.Parallel()

	if got := entrypointClass(map[string]routeEntry{}, RouteClassUI); got != RouteClassUI {
		t.Fatalf("got=%q", got)
	}
}
