package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-server/internal/util"
	"github.com/giantswarm/oauth-server/storage"
)

type authorizationCodeJSON struct {
	Code            string `json:"code"`
	ResourceOwnerID string `json:"resource_owner_id"`
	IssueTime       int64  `json:"issue_time"`
	ClientID        string `json:"client_id"`
	RedirectURI     string `json:"redirect_uri"`
	Scope           string `json:"scope"`
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON) (*storage.AuthorizationCode, error) {
	return &storage.AuthorizationCode{
		Code:            j.Code,
		ResourceOwnerID: j.ResourceOwnerID,
		IssueTime:       j.IssueTime,
		ClientID:        j.ClientID,
		RedirectURI:     j.RedirectURI,
		Scope:           j.Scope,
	}, nil
}

// ============================================================
// CodeStore Implementation
// ============================================================

// StoreAuthorizationCode saves an issued code. The key expires shortly after the
// code lifetime.
func (s *Store) StoreAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "store_code")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "store_code", err, startTime) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	j := &authorizationCodeJSON{
		Code:            code.Code,
		ResourceOwnerID: code.ResourceOwnerID,
		IssueTime:       code.IssueTime,
		ClientID:        code.ClientID,
		RedirectURI:     code.RedirectURI,
		Scope:           code.Scope,
	}
	ttl := calculateTTL(time.Unix(code.IssueTime, 0).Add(s.getCodeTTL()))
	if err := s.setJSON(ctx, s.codeKey(code.Code, code.RedirectURI), j, ttl); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode looks up a code by its value and redirect URI
func (s *Store) GetAuthorizationCode(ctx context.Context, code, redirectURI string) (ac *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_code")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_code", err, startTime) }()

	return getAndUnmarshal(ctx, s, s.codeKey(code, redirectURI), storage.ErrAuthorizationCodeNotFound, fromAuthorizationCodeJSON)
}

// DeleteAuthorizationCode removes a code. DEL is atomic, so of several
// concurrent callers only one sees a deleted count of 1.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code, redirectURI string) (deleted bool, err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_code")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "delete_code", err, startTime) }()

	n, err := s.client.Do(ctx, s.client.B().Del().Key(s.codeKey(code, redirectURI)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return n == 1, nil
}
