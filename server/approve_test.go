package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/giantswarm/oauth-server/internal/testutil"
	"github.com/giantswarm/oauth-server/storage"
)

func TestApprove_ApproveThenAuthorize(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	ctx := context.Background()
	req := webRequest("profile read")

	res, err := srv.Approve(ctx, testOwner, req, Decision{Approval: ApprovalApprove, Scope: "read profile"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if res.Action != ActionRedirect || queryValues(t, res.URL).Get("code") == "" {
		t.Fatalf("Approve() = %+v, want redirect with code", res)
	}

	approval, err := store.GetApproval(ctx, testutil.WebClientID, testOwnerID)
	if err != nil {
		t.Fatalf("GetApproval() error = %v", err)
	}
	if approval.Scope != "profile read" {
		t.Errorf("approval scope = %q, want %q", approval.Scope, "profile read")
	}

	// Same or narrower scope no longer needs approval
	for _, s := range []string{"profile read", "profile"} {
		res, err := srv.Authorize(ctx, testOwner, webRequest(s))
		if err != nil {
			t.Fatalf("Authorize(%q) error = %v", s, err)
		}
		if res.Action != ActionRedirect {
			t.Errorf("Authorize(%q) action = %s, want %s", s, res.Action, ActionRedirect)
		}
	}
}

func TestApprove_NarrowerScope(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	ctx := context.Background()

	res, err := srv.Approve(ctx, testOwner, webRequest("profile read"), Decision{Approval: ApprovalApprove, Scope: "read"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if res.Scope != "read" {
		t.Errorf("Scope = %q, want the approved scope %q", res.Scope, "read")
	}

	code := queryValues(t, res.URL).Get("code")
	stored, err := store.GetAuthorizationCode(ctx, code, testutil.WebClientURI)
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if stored.Scope != "read" {
		t.Errorf("code scope = %q, want %q", stored.Scope, "read")
	}

	// The part that was not approved still needs approval
	res, err = srv.Authorize(ctx, testOwner, webRequest("profile read"))
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if res.Action != ActionAskApproval {
		t.Errorf("Action = %s, want %s", res.Action, ActionAskApproval)
	}
}

func TestApprove_MergesWithExistingApproval(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	ctx := context.Background()
	grantApproval(t, store, testutil.WebClientID, testOwnerID, "profile read")

	_, err := srv.Approve(ctx, testOwner, webRequest("write"), Decision{Approval: ApprovalApprove, Scope: "write"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	approval, err := store.GetApproval(ctx, testutil.WebClientID, testOwnerID)
	if err != nil {
		t.Fatalf("GetApproval() error = %v", err)
	}
	if approval.Scope != "profile read write" {
		t.Errorf("approval scope = %q, want merged %q", approval.Scope, "profile read write")
	}
	if store.CallCount("AddApproval") != 0 {
		t.Error("an existing approval must be updated, not added")
	}
}

func TestApprove_AlreadyApprovedShortCircuits(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	ctx := context.Background()
	grantApproval(t, store, testutil.WebClientID, testOwnerID, "profile read")

	// Even a deny decision is ignored once the request no longer needs approval
	res, err := srv.Approve(ctx, testOwner, webRequest("read"), Decision{Approval: "Deny"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if res.Action != ActionRedirect {
		t.Errorf("Action = %s, want %s", res.Action, ActionRedirect)
	}
	if store.CallCount("AddApproval")+store.CallCount("UpdateApproval") != 0 {
		t.Error("short circuit must not touch approvals")
	}
}

func TestApprove_Deny(t *testing.T) {
	for _, decision := range []string{"Deny", "", "approve", "APPROVE"} {
		t.Run(decision, func(t *testing.T) {
			srv, store, _ := newTestServer(t, nil)

			_, err := srv.Approve(context.Background(), testOwner, webRequest("read"), Decision{Approval: decision, Scope: "read"})
			var clientErr *ClientError
			if !errors.As(err, &clientErr) {
				t.Fatalf("Approve() error = %v, want *ClientError", err)
			}
			if clientErr.Code != ErrorCodeAccessDenied {
				t.Errorf("Code = %q, want %q", clientErr.Code, ErrorCodeAccessDenied)
			}
			if clientErr.Client == nil || clientErr.Client.ID != testutil.WebClientID {
				t.Fatalf("denial must carry the client, got %+v", clientErr.Client)
			}
			if clientErr.State != testState {
				t.Errorf("State = %q, want %q", clientErr.State, testState)
			}

			redirect, err := clientErr.RedirectURL()
			if err != nil {
				t.Fatalf("RedirectURL() error = %v", err)
			}
			q := queryValues(t, redirect)
			if q.Get("error") != ErrorCodeAccessDenied || q.Get("state") != testState {
				t.Errorf("RedirectURL() = %q", redirect)
			}

			if _, err := store.GetApproval(context.Background(), testutil.WebClientID, testOwnerID); !storage.IsNotFound(err) {
				t.Error("a denial must not store an approval")
			}
		})
	}
}

func TestApprove_DenyUnregisteredImplicitClient(t *testing.T) {
	srv, _, _ := newTestServer(t, func(c *Config) { c.AllowUnregisteredClients = true })

	req := AuthorizeRequest{
		ClientID:     "example.org",
		ResponseType: ResponseTypeToken,
		RedirectURI:  "https://example.org/cb",
		Scope:        "read",
		State:        testState,
	}
	_, err := srv.Approve(context.Background(), testOwner, req, Decision{Approval: "Deny"})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("Approve() error = %v, want *ClientError", err)
	}

	redirect, err := clientErr.RedirectURL()
	if err != nil {
		t.Fatalf("RedirectURL() error = %v", err)
	}
	if !strings.HasPrefix(redirect, "https://example.org/cb#") {
		t.Errorf("RedirectURL() = %q, want fragment delivery to the synthesized client", redirect)
	}
}

func TestApprove_ScopeNotSubsetOfRequest(t *testing.T) {
	tests := []struct {
		name  string
		scope string
	}{
		{"wider scope", "read write"},
		{"other scope", "write"},
		{"empty scope", ""},
		{"malformed scope", `read"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store, _ := newTestServer(t, nil)

			_, err := srv.Approve(context.Background(), testOwner, webRequest("read"), Decision{Approval: ApprovalApprove, Scope: tt.scope})
			var clientErr *ClientError
			if !errors.As(err, &clientErr) {
				t.Fatalf("Approve() error = %v, want *ClientError", err)
			}
			if clientErr.Code != ErrorCodeInvalidScope {
				t.Errorf("Code = %q, want %q", clientErr.Code, ErrorCodeInvalidScope)
			}
			if !clientErr.ShowOwner {
				t.Error("approval scope errors belong on the approval page")
			}
			if store.CallCount("AddApproval")+store.CallCount("UpdateApproval")+store.CallCount("StoreAuthorizationCode") != 0 {
				t.Error("a rejected approval must not write to storage")
			}
		})
	}
}

func TestApprove_PropagatesAuthorizeErrors(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	_, err := srv.Approve(context.Background(), testOwner, AuthorizeRequest{ClientID: "ghost", ResponseType: ResponseTypeCode, Scope: "read"},
		Decision{Approval: ApprovalApprove, Scope: "read"})
	var roErr *ResourceOwnerError
	if !errors.As(err, &roErr) {
		t.Errorf("Approve() error = %v, want *ResourceOwnerError", err)
	}
}

func TestApprove_LostAddRaceMerges(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	ctx := context.Background()

	// Another request stores "profile" between our lookup and our insert
	store.AddApprovalFunc = func(ctx context.Context, clientID, ownerID, scope string) error {
		if err := store.Store.AddApproval(ctx, clientID, ownerID, "profile"); err != nil {
			return err
		}
		return storage.ErrApprovalExists
	}

	if _, err := srv.Approve(ctx, testOwner, webRequest("read"), Decision{Approval: ApprovalApprove, Scope: "read"}); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	approval, err := store.GetApproval(ctx, testutil.WebClientID, testOwnerID)
	if err != nil {
		t.Fatalf("GetApproval() error = %v", err)
	}
	if approval.Scope != "profile read" {
		t.Errorf("approval scope = %q, want %q", approval.Scope, "profile read")
	}
}

func TestApprove_StorageFailure(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	boom := errors.New("disk full")
	store.AddApprovalFunc = func(context.Context, string, string, string) error { return boom }

	_, err := srv.Approve(context.Background(), testOwner, webRequest("read"), Decision{Approval: ApprovalApprove, Scope: "read"})
	if !errors.Is(err, boom) {
		t.Errorf("Approve() error = %v, want wrapped backend error", err)
	}
	if store.CallCount("StoreAuthorizationCode") != 0 {
		t.Error("no code may be issued when the approval was not stored")
	}
}
