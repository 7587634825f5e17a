package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-server/storage"
)

type accessTokenJSON struct {
	Token           string `json:"token"`
	IssueTime       int64  `json:"issue_time"`
	ClientID        string `json:"client_id"`
	ResourceOwnerID string `json:"resource_owner_id"`
	Scope           string `json:"scope"`
	ExpiresIn       int64  `json:"expires_in"`
	TokenType       string `json:"token_type"`
}

func fromAccessTokenJSON(j *accessTokenJSON) (*storage.AccessToken, error) {
	return &storage.AccessToken{
		Token:           j.Token,
		IssueTime:       j.IssueTime,
		ClientID:        j.ClientID,
		ResourceOwnerID: j.ResourceOwnerID,
		Scope:           j.Scope,
		ExpiresIn:       j.ExpiresIn,
		TokenType:       j.TokenType,
	}, nil
}

type refreshTokenJSON struct {
	Token           string `json:"token"`
	ClientID        string `json:"client_id"`
	ResourceOwnerID string `json:"resource_owner_id"`
	Scope           string `json:"scope"`
}

func fromRefreshTokenJSON(j *refreshTokenJSON) (*storage.RefreshToken, error) {
	return &storage.RefreshToken{
		Token:           j.Token,
		ClientID:        j.ClientID,
		ResourceOwnerID: j.ResourceOwnerID,
		Scope:           j.Scope,
	}, nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// StoreAccessToken saves an access token. The key expires shortly after the token.
func (s *Store) StoreAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "store_access_token")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "store_access_token", err, startTime) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}

	j := &accessTokenJSON{
		Token:           token.Token,
		IssueTime:       token.IssueTime,
		ClientID:        token.ClientID,
		ResourceOwnerID: token.ResourceOwnerID,
		Scope:           token.Scope,
		ExpiresIn:       token.ExpiresIn,
		TokenType:       token.TokenType,
	}
	ttl := calculateTTL(time.Unix(token.ExpiresAt(), 0))
	if err := s.setJSON(ctx, s.accessTokenKey(token.Token), j, ttl); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// GetAccessToken looks up an access token
func (s *Store) GetAccessToken(ctx context.Context, token string) (at *storage.AccessToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_access_token", err, startTime) }()

	return getAndUnmarshal(ctx, s, s.accessTokenKey(token), storage.ErrAccessTokenNotFound, fromAccessTokenJSON)
}

// StoreRefreshToken saves a refresh token without expiry
func (s *Store) StoreRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "store_refresh_token")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "store_refresh_token", err, startTime) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}

	j := &refreshTokenJSON{
		Token:           token.Token,
		ClientID:        token.ClientID,
		ResourceOwnerID: token.ResourceOwnerID,
		Scope:           token.Scope,
	}
	if err := s.setJSON(ctx, s.refreshTokenKey(token.Token), j, 0); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken looks up a refresh token
func (s *Store) GetRefreshToken(ctx context.Context, token string) (rt *storage.RefreshToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_refresh_token", err, startTime) }()

	return getAndUnmarshal(ctx, s, s.refreshTokenKey(token), storage.ErrRefreshTokenNotFound, fromRefreshTokenJSON)
}
