package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/internal/util"
	"github.com/giantswarm/oauth-server/scope"
	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/storage"
)

// Authorize validates an authorization request on behalf of owner.
//
// The result either asks the caller to obtain the owner's approval or carries
// the redirect with the issued code (query) or access token (fragment).
// Failures are *ResourceOwnerError before the client and redirect URI are
// trusted and *ClientError afterwards. Any other error is a storage failure.
func (s *Server) Authorize(ctx context.Context, owner ResourceOwner, req AuthorizeRequest) (*Result, error) {
	ctx, span := s.startSpan(ctx, "server.Authorize")
	defer span.End()

	res, err := s.authorize(ctx, owner, req)
	s.recordAuthorize(ctx, req, res, err)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.AddOAuthFlowAttributes(span, res.Client.ID, owner.ID(), res.Scope)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAction, string(res.Action)))
	instrumentation.SetSpanSuccess(span)
	return res, nil
}

func (s *Server) authorize(ctx context.Context, owner ResourceOwner, req AuthorizeRequest) (*Result, error) {
	if owner == nil || owner.ID() == "" {
		return nil, fmt.Errorf("authenticated resource owner is required")
	}
	if req.ClientID == "" {
		return nil, newResourceOwnerError("client_id is required")
	}
	if len(req.ClientID) > maxClientIDLength {
		return nil, newResourceOwnerError("client_id must not exceed %d characters", maxClientIDLength)
	}
	if req.ResponseType == "" {
		return nil, newResourceOwnerError("response_type is required")
	}

	client, err := s.resolveClient(ctx, req)
	if err != nil {
		return nil, err
	}

	if client.Registered && req.RedirectURI != "" && req.RedirectURI != client.RedirectURI {
		return nil, newResourceOwnerError("redirect_uri does not match the registered redirect URI of client %q", client.ID)
	}

	if !SupportsResponseType(client.Type, req.ResponseType) {
		return nil, newClientError(ErrorCodeUnsupportedResponseType,
			fmt.Sprintf("response_type %q is not allowed for %s clients", req.ResponseType, client.Type),
			client, req)
	}

	requested, err := scope.Normalize(req.Scope)
	if err != nil {
		return nil, newClientError(ErrorCodeInvalidScope, "scope is missing or malformed", client, req)
	}
	if !s.Config.AllowAllScopes && !scope.IsSubset(requested, s.supportedScope) {
		return nil, newClientError(ErrorCodeInvalidScope, "scope contains unsupported values", client, req)
	}
	if scope.Contains(requested, s.Config.AdminScope) && !s.Config.isAdmin(owner.ID()) {
		s.audit(ctx, security.Event{
			Type:            security.EventScopeEscalationAttempt,
			ResourceOwnerID: owner.ID(),
			ClientID:        client.ID,
			Details:         map[string]any{"scope": requested},
		})
		return nil, newClientError(ErrorCodeInvalidScope, "scope is not available to this resource owner", client, req)
	}

	approval, err := s.store.GetApproval(ctx, client.ID, owner.ID())
	switch {
	case storage.IsNotFound(err):
		return &Result{Action: ActionAskApproval, Client: client, Scope: requested}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get approval: %w", err)
	case !scope.IsSubset(requested, approval.Scope):
		return &Result{Action: ActionAskApproval, Client: client, Scope: requested}, nil
	}

	if req.ResponseType == ResponseTypeToken {
		return s.issueImplicitToken(ctx, owner, client, req, requested)
	}
	return s.issueAuthorizationCode(ctx, owner, client, req, requested)
}

// resolveClient returns the registered client or, when allowed, a client
// synthesized from the redirect URI.
func (s *Server) resolveClient(ctx context.Context, req AuthorizeRequest) (*storage.Client, error) {
	client, err := s.store.GetClient(ctx, req.ClientID)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, storage.ErrClientNotFound) {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if !s.Config.AllowUnregisteredClients {
		return nil, newResourceOwnerError("unknown client %q", req.ClientID)
	}
	if req.RedirectURI == "" {
		return nil, newResourceOwnerError("redirect_uri is required for unregistered clients")
	}
	if err := validateUnregisteredRedirectURI(req.RedirectURI, req.ClientID); err != nil {
		return nil, err
	}

	return &storage.Client{
		ID:          req.ClientID,
		Name:        req.ClientID,
		Type:        storage.ClientTypeUserAgentBasedApplication,
		RedirectURI: req.RedirectURI,
		Registered:  false,
	}, nil
}

// validateUnregisteredRedirectURI checks that redirectURI is an absolute URL
// without fragment whose host is clientID.
func validateUnregisteredRedirectURI(redirectURI, clientID string) error {
	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return newResourceOwnerError("redirect_uri must be an absolute URL")
	}
	if u.Fragment != "" || strings.Contains(redirectURI, "#") {
		return newResourceOwnerError("redirect_uri must not contain a fragment")
	}
	if u.Hostname() != clientID {
		return newResourceOwnerError("client_id must equal the host of redirect_uri")
	}
	return nil
}

func (s *Server) issueImplicitToken(ctx context.Context, owner ResourceOwner, client *storage.Client, req AuthorizeRequest, granted string) (*Result, error) {
	token := &storage.AccessToken{
		Token:           security.GenerateToken(),
		IssueTime:       s.now().Unix(),
		ClientID:        client.ID,
		ResourceOwnerID: owner.ID(),
		Scope:           granted,
		ExpiresIn:       s.Config.AccessTokenTTL,
		TokenType:       TokenTypeBearer,
	}
	if err := s.store.StoreAccessToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	params := url.Values{}
	params.Set("access_token", token.Token)
	params.Set("expires_in", strconv.FormatInt(token.ExpiresIn, 10))
	params.Set("token_type", TokenTypeBearer)
	params.Set("scope", granted)
	if req.State != "" {
		params.Set("state", req.State)
	}

	s.audit(ctx, security.Event{
		Type:            security.EventImplicitTokenIssued,
		ResourceOwnerID: owner.ID(),
		ClientID:        client.ID,
		Details:         map[string]any{"scope": granted},
	})
	if s.metrics != nil {
		s.metrics.RecordTokenIssued(ctx, client.ID, ResponseTypeToken)
	}
	s.Logger.Debug("Issued implicit access token",
		"client_id", client.ID,
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength))

	return &Result{
		Action: ActionRedirect,
		Client: client,
		Scope:  granted,
		URL:    appendFragment(client.RedirectURI, params),
	}, nil
}

func (s *Server) issueAuthorizationCode(ctx context.Context, owner ResourceOwner, client *storage.Client, req AuthorizeRequest, granted string) (*Result, error) {
	code := &storage.AuthorizationCode{
		Code:            security.GenerateToken(),
		ResourceOwnerID: owner.ID(),
		IssueTime:       s.now().Unix(),
		ClientID:        client.ID,
		RedirectURI:     req.RedirectURI,
		Scope:           granted,
	}
	if err := s.store.StoreAuthorizationCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store authorization code: %w", err)
	}

	params := url.Values{}
	params.Set("code", code.Code)
	if req.State != "" {
		params.Set("state", req.State)
	}

	s.audit(ctx, security.Event{
		Type:            security.EventAuthorizationCodeIssued,
		ResourceOwnerID: owner.ID(),
		ClientID:        client.ID,
		Details:         map[string]any{"scope": granted},
	})
	s.Logger.Debug("Issued authorization code",
		"client_id", client.ID,
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength))

	return &Result{
		Action: ActionRedirect,
		Client: client,
		Scope:  granted,
		URL:    appendQuery(client.RedirectURI, params),
	}, nil
}

func (s *Server) recordAuthorize(ctx context.Context, req AuthorizeRequest, res *Result, err error) {
	if s.metrics == nil {
		return
	}
	outcome := outcomeOf(err)
	if err == nil {
		outcome = string(res.Action)
	}
	s.metrics.RecordAuthorize(ctx, req.ClientID, req.ResponseType, outcome)
}

// outcomeOf maps an error to a low-cardinality metric label
func outcomeOf(err error) string {
	var (
		roErr     *ResourceOwnerError
		clientErr *ClientError
		tokenErr  *TokenError
		verifyErr *VerifyError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &roErr):
		return ErrorCodeInvalidRequest
	case errors.As(err, &clientErr):
		return clientErr.Code
	case errors.As(err, &tokenErr):
		return tokenErr.Code
	case errors.As(err, &verifyErr):
		return verifyErr.Code
	default:
		return ErrorCodeServerError
	}
}
