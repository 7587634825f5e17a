package server

import (
	"github.com/giantswarm/oauth-server/storage"
)

// Grant types accepted at the token endpoint
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"

	// GrantTypeValidateBearer reports the stored record of an access token
	GrantTypeValidateBearer = "urn:pingidentity.com:oauth2:grant_type:validate_bearer"
)

// Token types
const (
	TokenTypeBearer = "bearer"

	// TokenTypeValidated marks a response of the validate_bearer grant
	TokenTypeValidated = "urn:pingidentity.com:oauth2:validated_token"
)

// ApprovalApprove is the only decision value that grants an approval
const ApprovalApprove = "Approve"

// maxClientIDLength bounds the client_id parameter
const maxClientIDLength = 64

// ResourceOwner is the authenticated end user on whose behalf a client acts
type ResourceOwner interface {
	ID() string
	DisplayName() string
}

type resourceOwner struct {
	id          string
	displayName string
}

func (o resourceOwner) ID() string          { return o.id }
func (o resourceOwner) DisplayName() string { return o.displayName }

// NewResourceOwner returns a ResourceOwner with fixed values
func NewResourceOwner(id, displayName string) ResourceOwner {
	return resourceOwner{id: id, displayName: displayName}
}

// AuthorizeRequest holds the query parameters of an authorization request
type AuthorizeRequest struct {
	ClientID     string
	ResponseType string
	RedirectURI  string
	Scope        string
	State        string
}

// Decision is the resource owner's answer on the approval page
type Decision struct {
	// Approval is "Approve" to grant; any other value denies
	Approval string

	// Scope is the scope the resource owner agreed to
	Scope string
}

// Action tells the caller what to do with a Result
type Action string

const (
	// ActionAskApproval means the resource owner must be asked for consent
	ActionAskApproval Action = "ask_approval"

	// ActionRedirect means the user agent must be sent to Result.URL
	ActionRedirect Action = "redirect"
)

// Result is the outcome of Authorize and Approve
type Result struct {
	Action Action

	// Client is the resolved (possibly synthesized) client
	Client *storage.Client

	// Scope is the canonical requested scope
	Scope string

	// URL is the redirect target when Action is ActionRedirect
	URL string
}

// TokenRequest holds the form parameters of a token request
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	RefreshToken string
	Token        string
}

// TokenResponse is the JSON body of a successful token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`

	// Set by the validate_bearer grant only
	ClientID        string `json:"client_id,omitempty"`
	ResourceOwnerID string `json:"resource_owner_id,omitempty"`
	IssueTime       int64  `json:"issue_time,omitempty"`
}
