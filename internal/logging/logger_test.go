package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"abcd1234efgh", "abcd****"},
		{"abcde", "abcd****"},
		{"abcd", "****"},
		{"ab", "****"},
		{"", "****"},
	}

	for _, tt := range tests {
		if got := MaskKey(tt.key); got != tt.want {
			t.Errorf("MaskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
		if len(tt.key) > 4 && strings.Contains(MaskKey(tt.key), tt.key) {
			t.Errorf("MaskKey(%q) leaks the full value", tt.key)
		}
	}
}

func TestMiddlewarePropagatesTraceID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" {
			t.Fatal("no trace ID in request context")
		}
		if got := rec.Header().Get("X-Request-ID"); got != seen {
			t.Errorf("X-Request-ID = %q, context trace ID = %q", got, seen)
		}
	})

	t.Run("reuses incoming header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "trace-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if seen != "trace-123" {
			t.Errorf("context trace ID = %q, want %q", seen, "trace-123")
		}
	})
}

func TestFromContext(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc")
	if FromContext(ctx) == nil {
		t.Fatal("FromContext returned nil")
	}
	if TraceIDFromContext(ctx) != "abc" {
		t.Error("trace ID round trip failed")
	}
}
