package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

func TestRequestLoggerEchoesRequestID(t *testing.T) {
	handler := RequestLogger(logging.New("error"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "front-desk-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "front-desk-42" {
		t.Fatalf("X-Request-ID = %q, want the caller's id echoed", got)
	}
}

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	handler := RequestLogger(logging.New("error"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id on the response")
	}
}
