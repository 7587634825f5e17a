package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/giantswarm/oauth-server/storage"
)

// OAuth 2.0 error codes from RFC 6749 and RFC 6750.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeInsufficientScope       = "insufficient_scope"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeServerError             = "server_error"
)

// ResourceOwnerError is a malformed authorization request that cannot be sent
// back to the client because no trusted redirect target is known yet. It is
// shown to the resource owner directly.
type ResourceOwnerError struct {
	Message string
}

func newResourceOwnerError(format string, args ...any) *ResourceOwnerError {
	return &ResourceOwnerError{Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (e *ResourceOwnerError) Error() string {
	return e.Message
}

// HTTPStatus returns the status code of the error page
func (e *ResourceOwnerError) HTTPStatus() int {
	return http.StatusBadRequest
}

// ClientError is a protocol error raised after the client was identified.
// It is delivered by redirecting to the client, unless ShowOwner is set, in
// which case it belongs on the approval page.
type ClientError struct {
	Code        string
	Description string

	// Client is the client the error is delivered to
	Client *storage.Client

	// State is echoed back verbatim
	State string

	// ResponseType selects query ("code") or fragment ("token") delivery
	ResponseType string

	// ShowOwner marks errors that must be shown to the resource owner instead
	// of being redirected
	ShowOwner bool
}

func newClientError(code, description string, client *storage.Client, req AuthorizeRequest) *ClientError {
	return &ClientError{
		Code:         code,
		Description:  description,
		Client:       client,
		State:        req.State,
		ResponseType: req.ResponseType,
	}
}

// Error implements the error interface
func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the status code used when the error is not redirected
func (e *ClientError) HTTPStatus() int {
	if e.Code == ErrorCodeAccessDenied {
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

// RedirectURL returns the client redirect carrying error, error_description
// and state. Implicit requests receive them in the fragment.
func (e *ClientError) RedirectURL() (string, error) {
	if e.Client == nil || e.Client.RedirectURI == "" {
		return "", fmt.Errorf("client error %q has no redirect target", e.Code)
	}

	params := url.Values{}
	params.Set("error", e.Code)
	if e.Description != "" {
		params.Set("error_description", e.Description)
	}
	if e.State != "" {
		params.Set("state", e.State)
	}

	if e.ResponseType == ResponseTypeToken {
		return appendFragment(e.Client.RedirectURI, params), nil
	}
	return appendQuery(e.Client.RedirectURI, params), nil
}

// TokenError is an error of the token endpoint, returned as a JSON body
type TokenError struct {
	Code        string
	Description string
}

func newTokenError(code, description string) *TokenError {
	return &TokenError{Code: code, Description: description}
}

// Error implements the error interface
func (e *TokenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the status code of the token endpoint response
func (e *TokenError) HTTPStatus() int {
	switch e.Code {
	case ErrorCodeInvalidClient:
		return http.StatusUnauthorized
	case ErrorCodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// VerifyError is returned when a bearer token presented to a protected
// resource is rejected.
type VerifyError struct {
	Code        string
	Description string
}

func newVerifyError(code, description string) *VerifyError {
	return &VerifyError{Code: code, Description: description}
}

// Error implements the error interface
func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the status code defined by RFC 6750 section 3.1
func (e *VerifyError) HTTPStatus() int {
	switch e.Code {
	case ErrorCodeInvalidToken:
		return http.StatusUnauthorized
	case ErrorCodeInsufficientScope:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// appendQuery adds params to the query of rawURL
func appendQuery(rawURL string, params url.Values) string {
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + params.Encode()
	}
	return rawURL + "?" + params.Encode()
}

// appendFragment sets params as the fragment of rawURL
func appendFragment(rawURL string, params url.Values) string {
	return rawURL + "#" + params.Encode()
}
