package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	if id1 == id2 {
		t.Error("Expected unique request IDs")
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("GenerateRequestID() = %q is not a UUID: %v", id1, err)
	}
	if !requestIDPattern.MatchString(id1) {
		t.Errorf("generated ID %q should pass upstream validation", id1)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-request-id-123")
	if got := GetRequestID(ctx); got != "test-request-id-123" {
		t.Errorf("GetRequestID() = %q, want test-request-id-123", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		existingHeader string
		expectNew      bool
	}{
		{"generates new ID when not present", "", true},
		{"preserves valid upstream ID", "upstream-request-id-xyz", false},
		{"rejects header injection", "id\r\nX-Injected: evil", true},
		{"rejects spaces", "id with spaces", true},
		{"rejects excessively long ID", strings.Repeat("a", 129), true},
		{"rejects markup", "<script>alert(1)</script>", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/authorize", nil)
			if tt.existingHeader != "" {
				req.Header.Set(RequestIDHeader, tt.existingHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if captured == "" {
				t.Fatal("request ID missing from context")
			}
			if got := rr.Header().Get(RequestIDHeader); got != captured {
				t.Errorf("response header = %q, context = %q", got, captured)
			}
			if tt.expectNew && captured == tt.existingHeader {
				t.Errorf("expected a generated ID, got upstream %q", captured)
			}
			if !tt.expectNew && captured != tt.existingHeader {
				t.Errorf("expected upstream ID %q, got %q", tt.existingHeader, captured)
			}
		})
	}
}
