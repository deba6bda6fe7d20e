package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAsOfFromRequest(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC) }

	t.Run("absent defaults to now", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/x", nil)
		got, ok := asOfFromRequest(w, r, now)
		if !ok || !got.Equal(now()) {
			t.Fatalf("got %v ok=%v", got, ok)
		}
	})

	t.Run("valid date", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/x?as_of=2025-01-02", nil)
		got, ok := asOfFromRequest(w, r, now)
		if !ok || !got.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("got %v ok=%v", got, ok)
		}
	})

	t.Run("malformed writes 400", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/x?as_of=01/02/2025", nil)
		_, ok := asOfFromRequest(w, r, now)
		if ok {
			t.Fatal("expected !ok")
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", w.Code)
		}
	})
}
