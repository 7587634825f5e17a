package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/scope"
	"github.com/giantswarm/oauth-server/storage"
)

const bearerPrefix = "Bearer "

// VerifyBearer checks an access token presented to a protected resource.
// authorization is the raw Authorization header. When requiredScope is not
// empty the token scope must include it.
//
// Failures are *VerifyError; any other error is a storage failure.
func (s *Server) VerifyBearer(ctx context.Context, authorization, requiredScope string) (*storage.AccessToken, error) {
	ctx, span := s.startSpan(ctx, "server.VerifyBearer")
	defer span.End()

	token, err := s.verifyBearer(ctx, authorization, requiredScope)
	if s.metrics != nil {
		s.metrics.RecordBearerVerification(ctx, outcomeOf(err))
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.AddOAuthFlowAttributes(span, token.ClientID, token.ResourceOwnerID, token.Scope)
	instrumentation.SetSpanSuccess(span)
	return token, nil
}

func (s *Server) verifyBearer(ctx context.Context, authorization, requiredScope string) (*storage.AccessToken, error) {
	if len(authorization) < len(bearerPrefix) || !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return nil, newVerifyError(ErrorCodeInvalidRequest, "bearer token is required")
	}
	raw := strings.TrimSpace(authorization[len(bearerPrefix):])
	if raw == "" {
		return nil, newVerifyError(ErrorCodeInvalidRequest, "bearer token is required")
	}

	token, err := s.store.GetAccessToken(ctx, raw)
	if storage.IsNotFound(err) {
		return nil, newVerifyError(ErrorCodeInvalidToken, "access token is invalid")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	if s.now().Unix() > token.ExpiresAt() {
		return nil, newVerifyError(ErrorCodeInvalidToken, "access token has expired")
	}
	if requiredScope != "" && !scope.IsSubset(requiredScope, token.Scope) {
		return nil, newVerifyError(ErrorCodeInsufficientScope, fmt.Sprintf("scope %q is required", requiredScope))
	}
	return token, nil
}
