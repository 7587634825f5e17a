// Package storage defines the persistence contracts of the authorization server.
// It supports various backend implementations including in-memory, Valkey and SQL databases.
package storage

import (
	"context"
)

// ClientType is an OAuth client profile. The profile constrains which response
// types a client may request and how it authenticates at the token endpoint.
type ClientType string

const (
	// ClientTypeWebApplication is a confidential client running on a web server.
	ClientTypeWebApplication ClientType = "web_application"

	// ClientTypeNativeApplication is an application installed on a device.
	ClientTypeNativeApplication ClientType = "native_application"

	// ClientTypeUserAgentBasedApplication runs inside the browser of the resource owner.
	ClientTypeUserAgentBasedApplication ClientType = "user_agent_based_application"
)

// Valid reports whether t is one of the known client profiles.
func (t ClientType) Valid() bool {
	switch t {
	case ClientTypeWebApplication, ClientTypeNativeApplication, ClientTypeUserAgentBasedApplication:
		return true
	}
	return false
}

// Client represents an OAuth client
type Client struct {
	ID          string
	Name        string
	Description string
	Type        ClientType
	RedirectURI string

	// Secret is the plaintext client secret. Backends that only keep a bcrypt
	// hash leave it empty and set SecretHash instead.
	Secret     string
	SecretHash string

	// Registered is false for clients synthesized from an unregistered redirect URI.
	Registered bool
}

// HasSecret reports whether the client can authenticate with Basic credentials.
func (c *Client) HasSecret() bool {
	return c.Secret != "" || c.SecretHash != ""
}

// Approval is the standing consent of a resource owner for a client.
type Approval struct {
	ClientID        string
	ResourceOwnerID string
	Scope           string
}

// AuthorizationCode represents an issued authorization code.
// It is keyed by Code together with RedirectURI, the redirect URI sent with the
// authorization request (empty when none was sent).
type AuthorizationCode struct {
	Code            string
	ResourceOwnerID string
	IssueTime       int64 // unix seconds
	ClientID        string
	RedirectURI     string
	Scope           string
}

// AccessToken represents an issued bearer token
type AccessToken struct {
	Token           string
	IssueTime       int64 // unix seconds
	ClientID        string
	ResourceOwnerID string
	Scope           string
	ExpiresIn       int64 // seconds after IssueTime
	TokenType       string
}

// ExpiresAt returns the unix time after which the token is no longer valid.
func (t *AccessToken) ExpiresAt() int64 {
	return t.IssueTime + t.ExpiresIn
}

// RefreshToken represents an issued refresh token. Refresh tokens do not expire.
type RefreshToken struct {
	Token           string
	ClientID        string
	ResourceOwnerID string
	Scope           string
}

// ClientStore manages client registrations.
type ClientStore interface {
	// GetClient retrieves a client by ID. Returns ErrClientNotFound if absent.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// SaveClient creates or replaces a client registration
	SaveClient(ctx context.Context, client *Client) error

	// DeleteClient removes a client registration
	DeleteClient(ctx context.Context, clientID string) error

	// ListClients lists all registered clients
	ListClients(ctx context.Context) ([]*Client, error)
}

// ApprovalStore manages resource owner approvals.
type ApprovalStore interface {
	// GetApproval returns ErrApprovalNotFound when the owner never approved the client.
	GetApproval(ctx context.Context, clientID, resourceOwnerID string) (*Approval, error)

	AddApproval(ctx context.Context, clientID, resourceOwnerID, scope string) error
	UpdateApproval(ctx context.Context, clientID, resourceOwnerID, scope string) error
	DeleteApproval(ctx context.Context, clientID, resourceOwnerID string) error

	// ListApprovals returns every approval given by a resource owner
	ListApprovals(ctx context.Context, resourceOwnerID string) ([]*Approval, error)
}

// CodeStore manages authorization codes.
type CodeStore interface {
	StoreAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode returns ErrAuthorizationCodeNotFound unless a code with
	// exactly this code and redirect URI exists.
	GetAuthorizationCode(ctx context.Context, code, redirectURI string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode atomically deletes the code if it is still present.
	// It reports whether this call removed it: of several concurrent calls for the
	// same code at most one returns true.
	DeleteAuthorizationCode(ctx context.Context, code, redirectURI string) (bool, error)
}

// TokenStore manages access and refresh tokens.
type TokenStore interface {
	StoreAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken returns ErrAccessTokenNotFound if absent. Expired tokens may
	// still be returned until the backend purges them.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	StoreRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken returns ErrRefreshTokenNotFound if absent.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
}

// Storage is the full persistence capability consumed by the authorization server.
type Storage interface {
	ClientStore
	ApprovalStore
	CodeStore
	TokenStore
}
