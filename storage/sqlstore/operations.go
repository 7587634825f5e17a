package sqlstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/giantswarm/oauth-server/internal/util"
	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/storage"
)

const tokenIDLogLength = 8

// ============================================================
// ClientStore Implementation
// ============================================================

// GetClient retrieves a client by ID. Only the secret hash is returned.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var rec clientRecord
	err := s.db.NewSelect().Model(&rec).Where("id = ?", clientID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return rec.toDomain(), nil
}

// SaveClient creates or replaces a client registration. A plaintext secret is
// replaced by its bcrypt hash.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ID == "" {
		return fmt.Errorf("invalid client: ID is required")
	}

	hash := client.SecretHash
	if client.Secret != "" {
		var err error
		if hash, err = security.HashSecret(client.Secret); err != nil {
			return err
		}
	}

	rec := &clientRecord{
		ID:          client.ID,
		Name:        client.Name,
		Description: client.Description,
		Type:        string(client.Type),
		RedirectURI: client.RedirectURI,
		SecretHash:  hash,
		Registered:  client.Registered,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*clientRecord)(nil)).Where("id = ?", client.ID).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(rec).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ID)
	return nil
}

// DeleteClient removes a client registration
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	res, err := s.db.NewDelete().Model((*clientRecord)(nil)).Where("id = ?", clientID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	return nil
}

// ListClients lists all registered clients ordered by ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	var recs []clientRecord
	if err := s.db.NewSelect().Model(&recs).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	clients := make([]*storage.Client, 0, len(recs))
	for i := range recs {
		clients = append(clients, recs[i].toDomain())
	}
	return clients, nil
}

// ============================================================
// ApprovalStore Implementation
// ============================================================

func approvalWhere(q *bun.SelectQuery, clientID, ownerID string) *bun.SelectQuery {
	return q.Where("client_id = ?", clientID).Where("resource_owner_id = ?", ownerID)
}

// GetApproval returns the approval a resource owner gave a client
func (s *Store) GetApproval(ctx context.Context, clientID, resourceOwnerID string) (*storage.Approval, error) {
	var rec approvalRecord
	err := approvalWhere(s.db.NewSelect().Model(&rec), clientID, resourceOwnerID).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return rec.toDomain(), nil
}

// AddApproval stores a new approval. It fails with ErrApprovalExists if one is present.
func (s *Store) AddApproval(ctx context.Context, clientID, resourceOwnerID, scope string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := approvalWhere(tx.NewSelect().Model((*approvalRecord)(nil)), clientID, resourceOwnerID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check approval: %w", err)
		}
		if exists {
			return storage.ErrApprovalExists
		}
		rec := &approvalRecord{ClientID: clientID, ResourceOwnerID: resourceOwnerID, Scope: scope}
		if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
			return fmt.Errorf("failed to add approval: %w", err)
		}
		return nil
	})
}

// UpdateApproval replaces the scope of an existing approval. Existence is
// checked explicitly because MySQL reports zero affected rows for a no-op update.
func (s *Store) UpdateApproval(ctx context.Context, clientID, resourceOwnerID, scope string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := approvalWhere(tx.NewSelect().Model((*approvalRecord)(nil)), clientID, resourceOwnerID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check approval: %w", err)
		}
		if !exists {
			return storage.ErrApprovalNotFound
		}
		_, err = tx.NewUpdate().
			Model((*approvalRecord)(nil)).
			Set("scope = ?", scope).
			Where("client_id = ?", clientID).
			Where("resource_owner_id = ?", resourceOwnerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update approval: %w", err)
		}
		return nil
	})
}

// DeleteApproval removes an approval
func (s *Store) DeleteApproval(ctx context.Context, clientID, resourceOwnerID string) error {
	res, err := s.db.NewDelete().
		Model((*approvalRecord)(nil)).
		Where("client_id = ?", clientID).
		Where("resource_owner_id = ?", resourceOwnerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrApprovalNotFound
	}
	return nil
}

// ListApprovals returns the approvals of a resource owner ordered by client ID
func (s *Store) ListApprovals(ctx context.Context, resourceOwnerID string) ([]*storage.Approval, error) {
	var recs []approvalRecord
	err := s.db.NewSelect().
		Model(&recs).
		Where("resource_owner_id = ?", resourceOwnerID).
		Order("client_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	approvals := make([]*storage.Approval, 0, len(recs))
	for i := range recs {
		approvals = append(approvals, recs[i].toDomain())
	}
	return approvals, nil
}

// ============================================================
// CodeStore Implementation
// ============================================================

// StoreAuthorizationCode saves an issued code
func (s *Store) StoreAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	rec := &codeRecord{
		Code:            code.Code,
		RedirectURI:     code.RedirectURI,
		ResourceOwnerID: code.ResourceOwnerID,
		IssueTime:       code.IssueTime,
		ClientID:        code.ClientID,
		Scope:           code.Scope,
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode looks up a code by its value and redirect URI
func (s *Store) GetAuthorizationCode(ctx context.Context, code, redirectURI string) (*storage.AuthorizationCode, error) {
	var rec codeRecord
	err := s.db.NewSelect().
		Model(&rec).
		Where("code = ?", code).
		Where("redirect_uri = ?", redirectURI).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return rec.toDomain(), nil
}

// DeleteAuthorizationCode removes a code. The row count of the DELETE decides
// which of several concurrent callers redeemed it.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code, redirectURI string) (bool, error) {
	res, err := s.db.NewDelete().
		Model((*codeRecord)(nil)).
		Where("code = ?", code).
		Where("redirect_uri = ?", redirectURI).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to delete authorization code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return n == 1, nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// StoreAccessToken saves an access token
func (s *Store) StoreAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}

	rec := &accessTokenRecord{
		Token:           token.Token,
		IssueTime:       token.IssueTime,
		ExpiresAt:       token.ExpiresAt(),
		ClientID:        token.ClientID,
		ResourceOwnerID: token.ResourceOwnerID,
		Scope:           token.Scope,
		ExpiresIn:       token.ExpiresIn,
		TokenType:       token.TokenType,
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// GetAccessToken looks up an access token
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	var rec accessTokenRecord
	if err := s.db.NewSelect().Model(&rec).Where("token = ?", token).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, storage.ErrAccessTokenNotFound
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return rec.toDomain(), nil
}

// StoreRefreshToken saves a refresh token
func (s *Store) StoreRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}

	rec := &refreshTokenRecord{
		Token:           token.Token,
		ClientID:        token.ClientID,
		ResourceOwnerID: token.ResourceOwnerID,
		Scope:           token.Scope,
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken looks up a refresh token
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	var rec refreshTokenRecord
	if err := s.db.NewSelect().Model(&rec).Where("token = ?", token).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, storage.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return rec.toDomain(), nil
}
