package server

import (
	"strings"
	"testing"

	"github.com/giantswarm/oauth-server/storage"
)

func TestClientError_RedirectURL(t *testing.T) {
	tests := []struct {
		name        string
		redirectURI string
		err         *ClientError
		want        string
	}{
		{
			name:        "query delivery",
			redirectURI: "https://app.example.com/cb",
			err:         &ClientError{Code: ErrorCodeAccessDenied, Description: "denied", State: "s1", ResponseType: ResponseTypeCode},
			want:        "https://app.example.com/cb?error=access_denied&error_description=denied&state=s1",
		},
		{
			name:        "fragment delivery",
			redirectURI: "https://app.example.com/cb",
			err:         &ClientError{Code: ErrorCodeInvalidScope, ResponseType: ResponseTypeToken},
			want:        "https://app.example.com/cb#error=invalid_scope",
		},
		{
			name:        "existing query",
			redirectURI: "https://app.example.com/cb?tenant=a",
			err:         &ClientError{Code: ErrorCodeInvalidScope, ResponseType: ResponseTypeCode},
			want:        "https://app.example.com/cb?tenant=a&error=invalid_scope",
		},
		{
			name:        "description is encoded",
			redirectURI: "https://app.example.com/cb",
			err:         &ClientError{Code: ErrorCodeInvalidScope, Description: "a&b c"},
			want:        "https://app.example.com/cb?error=invalid_scope&error_description=a%26b+c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.err.Client = &storage.Client{ID: "c", RedirectURI: tt.redirectURI}
			got, err := tt.err.RedirectURL()
			if err != nil {
				t.Fatalf("RedirectURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RedirectURL() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := (&ClientError{Code: ErrorCodeInvalidScope}).RedirectURL(); err == nil {
		t.Error("RedirectURL() without client should fail")
	}
}

func TestErrors_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  interface{ HTTPStatus() int }
		want int
	}{
		{"resource owner", newResourceOwnerError("x"), 400},
		{"client invalid_scope", &ClientError{Code: ErrorCodeInvalidScope}, 400},
		{"client access_denied", &ClientError{Code: ErrorCodeAccessDenied}, 403},
		{"token invalid_grant", newTokenError(ErrorCodeInvalidGrant, ""), 400},
		{"token invalid_client", newTokenError(ErrorCodeInvalidClient, ""), 401},
		{"token server_error", newTokenError(ErrorCodeServerError, ""), 500},
		{"verify invalid_request", newVerifyError(ErrorCodeInvalidRequest, ""), 400},
		{"verify invalid_token", newVerifyError(ErrorCodeInvalidToken, ""), 401},
		{"verify insufficient_scope", newVerifyError(ErrorCodeInsufficientScope, ""), 403},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrors_Messages(t *testing.T) {
	if got := newResourceOwnerError("client %q unknown", "x").Error(); got != `client "x" unknown` {
		t.Errorf("Error() = %q", got)
	}
	if got := newTokenError(ErrorCodeInvalidGrant, "expired").Error(); !strings.HasPrefix(got, "invalid_grant") {
		t.Errorf("Error() = %q", got)
	}
}
