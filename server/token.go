package server

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/internal/util"
	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/storage"
)

// grant is the part of a code or refresh token the token endpoint acts on
type grant struct {
	clientID        string
	resourceOwnerID string
	scope           string

	// set for the authorization_code grant
	code        string
	redirectURI string
}

// Token handles a token endpoint request. authorization is the raw value of
// the Authorization header and may be empty.
//
// Failures are *TokenError; any other error is a storage failure.
func (s *Server) Token(ctx context.Context, req TokenRequest, authorization string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "server.Token")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, req.GrantType))

	resp, err := s.token(ctx, req, authorization)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTokenError(ctx, req.GrantType, outcomeOf(err))
		}
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (s *Server) token(ctx context.Context, req TokenRequest, authorization string) (*TokenResponse, error) {
	var (
		g   *grant
		err error
	)
	switch req.GrantType {
	case "":
		return nil, newTokenError(ErrorCodeInvalidRequest, "grant_type is required")
	case GrantTypeValidateBearer:
		return s.validateBearer(ctx, req)
	case GrantTypeAuthorizationCode:
		g, err = s.lookupAuthorizationCode(ctx, req)
	case GrantTypeRefreshToken:
		g, err = s.lookupRefreshToken(ctx, req)
	default:
		return nil, newTokenError(ErrorCodeUnsupportedGrantType, fmt.Sprintf("grant_type %q is not supported", req.GrantType))
	}
	if err != nil {
		return nil, err
	}

	client, err := s.authenticateClient(ctx, g.clientID, authorization)
	if err != nil {
		return nil, err
	}
	if client.ID != g.clientID {
		s.audit(ctx, security.Event{
			Type:            security.EventClientMismatch,
			ResourceOwnerID: g.resourceOwnerID,
			ClientID:        client.ID,
			Details:         map[string]any{"grant_client_id": g.clientID, "grant_type": req.GrantType},
		})
		return nil, newTokenError(ErrorCodeInvalidGrant, "grant was issued to another client")
	}

	return s.issueToken(ctx, req.GrantType, g)
}

func (s *Server) lookupAuthorizationCode(ctx context.Context, req TokenRequest) (*grant, error) {
	if req.Code == "" {
		return nil, newTokenError(ErrorCodeInvalidRequest, "code is required")
	}

	code, err := s.store.GetAuthorizationCode(ctx, req.Code, req.RedirectURI)
	if storage.IsNotFound(err) {
		return nil, newTokenError(ErrorCodeInvalidGrant, "authorization code is invalid or was issued for another redirect_uri")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	if s.now().Unix() > code.IssueTime+s.Config.AuthorizationCodeTTL {
		return nil, newTokenError(ErrorCodeInvalidGrant, "authorization code has expired")
	}

	return &grant{
		clientID:        code.ClientID,
		resourceOwnerID: code.ResourceOwnerID,
		scope:           code.Scope,
		code:            code.Code,
		redirectURI:     code.RedirectURI,
	}, nil
}

func (s *Server) lookupRefreshToken(ctx context.Context, req TokenRequest) (*grant, error) {
	if req.RefreshToken == "" {
		return nil, newTokenError(ErrorCodeInvalidRequest, "refresh_token is required")
	}

	rt, err := s.store.GetRefreshToken(ctx, req.RefreshToken)
	if storage.IsNotFound(err) {
		return nil, newTokenError(ErrorCodeInvalidGrant, "refresh token is invalid")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return &grant{
		clientID:        rt.ClientID,
		resourceOwnerID: rt.ResourceOwnerID,
		scope:           rt.Scope,
	}, nil
}

// authenticateClient resolves the client presenting a grant and applies the
// token endpoint rules of its profile. The client named in valid-looking
// Basic credentials takes precedence over the grant's client, so a client
// replaying another client's grant is caught by the id comparison in token.
func (s *Server) authenticateClient(ctx context.Context, grantClientID, authorization string) (*storage.Client, error) {
	clientID := grantClientID
	if username, _, ok := security.ParseBasicAuth(authorization); ok {
		clientID = username
	}

	client, err := s.store.GetClient(ctx, clientID)
	if storage.IsNotFound(err) {
		s.clientAuthFailed(ctx, clientID, "unknown_client")
		return nil, newTokenError(ErrorCodeInvalidClient, "unknown client")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	switch TokenEndpointAuth(client.Type) {
	case ClientAuthForbidden:
		return nil, newTokenError(ErrorCodeUnauthorizedClient, fmt.Sprintf("%s clients cannot use the token endpoint", client.Type))
	case ClientAuthRequired:
		if authorization == "" {
			s.clientAuthFailed(ctx, client.ID, "missing_credentials")
			return nil, newTokenError(ErrorCodeInvalidClient, "client authentication is required")
		}
	case ClientAuthOptional:
		if authorization == "" {
			return client, nil
		}
	}

	if !verifyClientCredentials(client, authorization) {
		s.clientAuthFailed(ctx, client.ID, "invalid_credentials")
		return nil, newTokenError(ErrorCodeInvalidClient, "client authentication failed")
	}
	return client, nil
}

// verifyClientCredentials checks Basic credentials against the plaintext
// secret or, when only a hash is stored, against the bcrypt hash
func verifyClientCredentials(client *storage.Client, authorization string) bool {
	switch {
	case client.Secret != "":
		return security.VerifyBasicAuth(authorization, client.ID, client.Secret)
	case client.SecretHash != "":
		return security.VerifyBasicAuthHash(authorization, client.ID, client.SecretHash)
	default:
		return false
	}
}

func (s *Server) clientAuthFailed(ctx context.Context, clientID, reason string) {
	if s.Auditor != nil {
		s.Auditor.LogAuthFailure(clientID, "", reason)
	}
	if s.metrics != nil {
		s.metrics.RecordClientAuthFailure(ctx, reason)
	}
}

// issueToken mints an access token for g. For a code the code is then
// deleted; only the caller whose delete succeeds receives the token and a
// new refresh token.
func (s *Server) issueToken(ctx context.Context, grantType string, g *grant) (*TokenResponse, error) {
	now := s.now().Unix()

	token := &storage.AccessToken{
		Token:           security.GenerateToken(),
		IssueTime:       now,
		ClientID:        g.clientID,
		ResourceOwnerID: g.resourceOwnerID,
		Scope:           g.scope,
		ExpiresIn:       s.Config.AccessTokenTTL,
		TokenType:       TokenTypeBearer,
	}
	if err := s.store.StoreAccessToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}
	stored, err := s.store.GetAccessToken(ctx, token.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to read back access token: %w", err)
	}

	resp := &TokenResponse{
		AccessToken: stored.Token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   stored.IssueTime + s.Config.AccessTokenTTL - now,
		Scope:       stored.Scope,
	}

	if grantType == GrantTypeAuthorizationCode {
		deleted, err := s.store.DeleteAuthorizationCode(ctx, g.code, g.redirectURI)
		if err != nil {
			return nil, fmt.Errorf("failed to delete authorization code: %w", err)
		}
		if !deleted {
			s.audit(ctx, security.Event{
				Type:            security.EventAuthorizationCodeReuseDetected,
				ResourceOwnerID: g.resourceOwnerID,
				ClientID:        g.clientID,
				Details:         map[string]any{"code_prefix": util.SafeTruncate(g.code, tokenIDLogLength)},
			})
			if s.metrics != nil {
				s.metrics.RecordCodeReuseDetected(ctx)
			}
			return nil, newTokenError(ErrorCodeInvalidGrant, "authorization code has already been used")
		}

		refresh := &storage.RefreshToken{
			Token:           security.GenerateToken(),
			ClientID:        g.clientID,
			ResourceOwnerID: g.resourceOwnerID,
			Scope:           g.scope,
		}
		if err := s.store.StoreRefreshToken(ctx, refresh); err != nil {
			return nil, fmt.Errorf("failed to store refresh token: %w", err)
		}
		resp.RefreshToken = refresh.Token
	}

	s.audit(ctx, security.Event{
		Type:            security.EventTokenIssued,
		ResourceOwnerID: g.resourceOwnerID,
		ClientID:        g.clientID,
		Details:         map[string]any{"grant_type": grantType, "scope": g.scope},
	})
	if s.metrics != nil {
		s.metrics.RecordTokenIssued(ctx, g.clientID, grantType)
	}
	s.Logger.Debug("Issued access token",
		"client_id", g.clientID,
		"grant_type", grantType,
		"token_prefix", util.SafeTruncate(resp.AccessToken, tokenIDLogLength))

	return resp, nil
}

// validateBearer reports the stored record of an access token. It does not
// check expiry; the caller decides what an expired record means.
func (s *Server) validateBearer(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.Token == "" {
		return nil, newTokenError(ErrorCodeInvalidRequest, "token is required")
	}

	at, err := s.store.GetAccessToken(ctx, req.Token)
	if storage.IsNotFound(err) {
		return nil, newTokenError(ErrorCodeInvalidGrant, "token is invalid")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	s.audit(ctx, security.Event{
		Type:            security.EventBearerValidated,
		ResourceOwnerID: at.ResourceOwnerID,
		ClientID:        at.ClientID,
	})

	return &TokenResponse{
		AccessToken:     at.Token,
		TokenType:       TokenTypeValidated,
		ExpiresIn:       at.ExpiresIn,
		Scope:           at.Scope,
		ClientID:        at.ClientID,
		ResourceOwnerID: at.ResourceOwnerID,
		IssueTime:       at.IssueTime,
	}, nil
}
