package server

import (
	"context"
	"errors"
	"testing"

	"github.com/giantswarm/oauth-server/internal/testutil"
	"github.com/giantswarm/oauth-server/storage"
)

func TestVerifyBearer(t *testing.T) {
	srv, store, clock := newTestServer(t, nil)
	ctx := context.Background()
	now := clock.Now().Unix()

	for _, at := range []*storage.AccessToken{
		testutil.AccessToken("live", now-100, 3600),
		testutil.AccessToken("edge", now-3600, 3600),
		testutil.AccessToken("expired", now-3601, 3600),
	} {
		if err := store.Store.StoreAccessToken(ctx, at); err != nil {
			t.Fatalf("StoreAccessToken() error = %v", err)
		}
	}

	tests := []struct {
		name          string
		header        string
		requiredScope string
		wantCode      string
		wantStatus    int
	}{
		{"valid token", "Bearer live", "", "", 0},
		{"lowercase scheme", "bearer live", "", "", 0},
		{"scope satisfied", "Bearer live", "read", "", 0},
		{"scope satisfied unordered", "Bearer live", "read profile", "", 0},
		{"token at expiry", "Bearer edge", "", "", 0},
		{"missing header", "", "", ErrorCodeInvalidRequest, 400},
		{"basic scheme", "Basic bGl2ZQ==", "", ErrorCodeInvalidRequest, 400},
		{"empty token", "Bearer ", "", ErrorCodeInvalidRequest, 400},
		{"unknown token", "Bearer nope", "", ErrorCodeInvalidToken, 401},
		{"expired token", "Bearer expired", "", ErrorCodeInvalidToken, 401},
		{"insufficient scope", "Bearer live", "write", ErrorCodeInsufficientScope, 403},
		{"malformed required scope", "Bearer live", "read  profile", ErrorCodeInsufficientScope, 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := srv.VerifyBearer(ctx, tt.header, tt.requiredScope)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("VerifyBearer() error = %v", err)
				}
				if token.ResourceOwnerID != "alice" {
					t.Errorf("token = %+v", token)
				}
				return
			}

			var verifyErr *VerifyError
			if !errors.As(err, &verifyErr) {
				t.Fatalf("VerifyBearer() error = %v, want *VerifyError", err)
			}
			if verifyErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", verifyErr.Code, tt.wantCode)
			}
			if verifyErr.HTTPStatus() != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", verifyErr.HTTPStatus(), tt.wantStatus)
			}
		})
	}
}

func TestVerifyBearer_IssuedToken(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	ctx := context.Background()
	grantApproval(t, store, testutil.WebClientID, testOwnerID, "read")
	code := issueCode(t, srv, testOwner, webRequest("read"))

	resp, err := srv.Token(ctx, codeRequest(code), webAuth)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	token, err := srv.VerifyBearer(ctx, "Bearer "+resp.AccessToken, "read")
	if err != nil {
		t.Fatalf("VerifyBearer() error = %v", err)
	}
	if token.ClientID != testutil.WebClientID || token.ResourceOwnerID != testOwnerID {
		t.Errorf("token = %+v", token)
	}
}

func TestVerifyBearer_StorageFailure(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	boom := errors.New("unavailable")
	store.GetAccessTokenFunc = func(context.Context, string) (*storage.AccessToken, error) { return nil, boom }

	_, err := srv.VerifyBearer(context.Background(), "Bearer x", "")
	if !errors.Is(err, boom) {
		t.Errorf("VerifyBearer() error = %v, want wrapped backend error", err)
	}
}
