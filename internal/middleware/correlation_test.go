package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCorrelationID(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := r.Context().Value(CorrelationKey).(string)
		if !ok || id == "" {
			t.Error("correlation id missing from context")
		}
	}))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("header missing")
	}
}

func TestCorrelationID_PropagatesIncomingHeader(t *testing.T) {
	var seen string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if seen != "abc-123" {
		t.Errorf("expected abc-123, got %q", seen)
	}
	if w.Header().Get("X-Correlation-ID") != "abc-123" {
		t.Error("response header should echo the incoming id")
	}
}

func TestRunID(t *testing.T) {
	ctx := context.Background()
	if GetRunID(ctx) != "" {
		t.Error("expected empty run id")
	}
	if GetCorrelationID(ctx) != "unknown" {
		t.Error("expected unknown correlation id")
	}

	ctx = WithRunID(ctx, "run-1")
	if GetRunID(ctx) != "run-1" {
		t.Errorf("expected run-1, got %q", GetRunID(ctx))
	}
}
