package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-server/internal/testutil"
	"github.com/giantswarm/oauth-server/server"
)

// TestEndToEnd_AuthorizationCodeFlow drives the handler with a standard
// OAuth2 client library over real HTTP.
func TestEndToEnd_AuthorizationCodeFlow(t *testing.T) {
	h, _ := setupTestHandler(t, nil)
	ts := httptest.NewServer(h)
	defer ts.Close()

	conf := &oauth2.Config{
		ClientID:     testutil.WebClientID,
		ClientSecret: testutil.WebSecret,
		RedirectURL:  testutil.WebClientURI,
		Scopes:       []string{"profile", "read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/authorize",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	browser := ts.Client()
	browser.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	authURL := conf.AuthCodeURL("e2e-state")

	// First visit shows the approval page
	resp, err := browser.Get(authURL)
	if err != nil {
		t.Fatalf("GET authorize error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorize status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// The resource owner approves
	form := url.Values{"approval": {server.ApprovalApprove}, "scope": {"profile read"}}
	resp, err = browser.Post(authURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("POST authorize error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("approve status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	if got := loc.Query().Get("state"); got != "e2e-state" {
		t.Errorf("state = %q, want e2e-state", got)
	}

	ctx := context.Background()
	tok, err := conf.Exchange(ctx, loc.Query().Get("code"))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		t.Fatalf("token = %+v, want access and refresh token", tok)
	}
	if !tok.Expiry.After(time.Now()) {
		t.Errorf("Expiry = %v, want in the future", tok.Expiry)
	}
	if got := tok.Extra("scope"); got != "profile read" {
		t.Errorf("scope = %v, want %q", got, "profile read")
	}

	// The access token works against the management API
	api := conf.Client(ctx, tok)
	resp, err = api.Get(ts.URL + "/api/approvals")
	if err != nil {
		t.Fatalf("GET approvals error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approvals status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var approvals []ApprovalResource
	if err := json.NewDecoder(resp.Body).Decode(&approvals); err != nil {
		t.Fatalf("failed to decode approvals: %v", err)
	}
	if len(approvals) != 1 || approvals[0].ClientID != testutil.WebClientID {
		t.Errorf("approvals = %+v, want one for %s", approvals, testutil.WebClientID)
	}

	// The refresh token yields a new access token
	refreshed, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.AccessToken == tok.AccessToken {
		t.Errorf("refreshed access token = %q, want a new token", refreshed.AccessToken)
	}

	// A replayed code is rejected with the OAuth error body
	_, err = conf.Exchange(ctx, loc.Query().Get("code"))
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("replayed Exchange() error = %v, want *oauth2.RetrieveError", err)
	}
	if retrieveErr.ErrorCode != server.ErrorCodeInvalidGrant {
		t.Errorf("ErrorCode = %q, want %q", retrieveErr.ErrorCode, server.ErrorCodeInvalidGrant)
	}
}

func TestEndToEnd_WrongClientSecret(t *testing.T) {
	h, _ := setupTestHandler(t, nil)
	ts := httptest.NewServer(h)
	defer ts.Close()

	code := issueCode(t, h, "profile")

	conf := &oauth2.Config{
		ClientID:     testutil.WebClientID,
		ClientSecret: "wrong",
		RedirectURL:  testutil.WebClientURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	_, err := conf.Exchange(context.Background(), code)
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("Exchange() error = %v, want *oauth2.RetrieveError", err)
	}
	if retrieveErr.Response.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", retrieveErr.Response.StatusCode, http.StatusUnauthorized)
	}
	if retrieveErr.ErrorCode != server.ErrorCodeInvalidClient {
		t.Errorf("ErrorCode = %q, want %q", retrieveErr.ErrorCode, server.ErrorCodeInvalidClient)
	}
}
