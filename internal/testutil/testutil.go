package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth-server/storage"
)

// Fixture client IDs and secrets
const (
	WebClientID    = "webapp1"
	WebClientURI   = "https://webapp1.example.com/cb"
	WebSecret      = "s3cret"
	NativeClientID = "native1"
	NativeURI      = "urn:ietf:wg:oauth:2.0:oob"
	NativeSecret   = "n4tive"
	AgentClientID  = "agent1"
	AgentURI       = "https://agent1.example.com/app"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// WebClient returns a registered web application with a plaintext secret
func WebClient() *storage.Client {
	return &storage.Client{
		ID:          WebClientID,
		Name:        "Web App",
		Type:        storage.ClientTypeWebApplication,
		RedirectURI: WebClientURI,
		Secret:      WebSecret,
		Registered:  true,
	}
}

// NativeClient returns a registered native application with a plaintext secret
func NativeClient() *storage.Client {
	return &storage.Client{
		ID:          NativeClientID,
		Name:        "Native App",
		Type:        storage.ClientTypeNativeApplication,
		RedirectURI: NativeURI,
		Secret:      NativeSecret,
		Registered:  true,
	}
}

// AgentClient returns a registered user-agent-based application without secret
func AgentClient() *storage.Client {
	return &storage.Client{
		ID:          AgentClientID,
		Name:        "Browser App",
		Type:        storage.ClientTypeUserAgentBasedApplication,
		RedirectURI: AgentURI,
		Registered:  true,
	}
}

// AuthorizationCode returns a code issued at issueTime to the web client
func AuthorizationCode(code string, issueTime int64) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:            code,
		ResourceOwnerID: "alice",
		IssueTime:       issueTime,
		ClientID:        WebClientID,
		RedirectURI:     WebClientURI,
		Scope:           "profile read",
	}
}

// AccessToken returns a bearer token issued at issueTime to the web client
func AccessToken(token string, issueTime, expiresIn int64) *storage.AccessToken {
	return &storage.AccessToken{
		Token:           token,
		IssueTime:       issueTime,
		ClientID:        WebClientID,
		ResourceOwnerID: "alice",
		Scope:           "profile read",
		ExpiresIn:       expiresIn,
		TokenType:       "bearer",
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// HTTPRequest is a helper for making test HTTP requests
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// NewHTTPRequest creates a new HTTP request helper
func NewHTTPRequest(method, url string) *HTTPRequest {
	return &HTTPRequest{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *HTTPRequest) WithHeader(key, value string) *HTTPRequest {
	r.Headers[key] = value
	return r
}

// WithForm sets a form-encoded body
func (r *HTTPRequest) WithForm(body string) *HTTPRequest {
	r.Body = body
	r.Headers["Content-Type"] = "application/x-www-form-urlencoded"
	return r
}

// Do executes the HTTP request
func (r *HTTPRequest) Do(handler http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(r.Method, r.URL, strings.NewReader(r.Body))
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
