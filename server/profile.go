package server

import (
	"slices"

	"github.com/giantswarm/oauth-server/storage"
)

// Response types accepted at the authorization endpoint
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// ClientAuth describes how a client profile authenticates at the token endpoint
type ClientAuth int

const (
	// ClientAuthForbidden clients never reach the token endpoint
	ClientAuthForbidden ClientAuth = iota

	// ClientAuthRequired clients must present valid Basic credentials
	ClientAuthRequired

	// ClientAuthOptional clients may present Basic credentials, which must verify when present
	ClientAuthOptional
)

// String returns a readable name for logging
func (a ClientAuth) String() string {
	switch a {
	case ClientAuthRequired:
		return "required"
	case ClientAuthOptional:
		return "optional"
	default:
		return "forbidden"
	}
}

var responseTypes = map[storage.ClientType][]string{
	storage.ClientTypeWebApplication:            {ResponseTypeCode},
	storage.ClientTypeNativeApplication:         {ResponseTypeToken, ResponseTypeCode},
	storage.ClientTypeUserAgentBasedApplication: {ResponseTypeToken},
}

var tokenEndpointAuth = map[storage.ClientType]ClientAuth{
	storage.ClientTypeWebApplication:            ClientAuthRequired,
	storage.ClientTypeNativeApplication:         ClientAuthOptional,
	storage.ClientTypeUserAgentBasedApplication: ClientAuthForbidden,
}

// AllowedResponseTypes returns the response types a client profile may request
func AllowedResponseTypes(t storage.ClientType) []string {
	return slices.Clone(responseTypes[t])
}

// SupportsResponseType reports whether a client profile may request responseType
func SupportsResponseType(t storage.ClientType, responseType string) bool {
	return slices.Contains(responseTypes[t], responseType)
}

// TokenEndpointAuth returns the token endpoint authentication rule of a client
// profile. Unknown profiles are forbidden.
func TokenEndpointAuth(t storage.ClientType) ClientAuth {
	if auth, ok := tokenEndpointAuth[t]; ok {
		return auth
	}
	return ClientAuthForbidden
}
