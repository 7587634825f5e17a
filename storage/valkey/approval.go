package valkey

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/giantswarm/oauth-server/storage"
)

// Approvals of one resource owner live in a single hash: field client ID, value scope.

// luaUpdateApproval replaces the scope only if the approval exists.
const luaUpdateApproval = `
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
  return 1
end
return 0`

// ============================================================
// ApprovalStore Implementation
// ============================================================

// GetApproval returns the approval a resource owner gave a client
func (s *Store) GetApproval(ctx context.Context, clientID, resourceOwnerID string) (approval *storage.Approval, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_approval")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_approval", err, startTime) }()

	scope, err := s.client.Do(ctx,
		s.client.B().Hget().Key(s.approvalsKey(resourceOwnerID)).Field(clientID).Build(),
	).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}

	return &storage.Approval{ClientID: clientID, ResourceOwnerID: resourceOwnerID, Scope: scope}, nil
}

// AddApproval stores a new approval. It fails with ErrApprovalExists if one is present.
func (s *Store) AddApproval(ctx context.Context, clientID, resourceOwnerID, scope string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "add_approval")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "add_approval", err, startTime) }()

	added, err := s.client.Do(ctx,
		s.client.B().Hsetnx().Key(s.approvalsKey(resourceOwnerID)).Field(clientID).Value(scope).Build(),
	).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to add approval: %w", err)
	}
	if added == 0 {
		return storage.ErrApprovalExists
	}
	return nil
}

// UpdateApproval replaces the scope of an existing approval
func (s *Store) UpdateApproval(ctx context.Context, clientID, resourceOwnerID, scope string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "update_approval")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "update_approval", err, startTime) }()

	updated, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaUpdateApproval).
			Numkeys(1).
			Key(s.approvalsKey(resourceOwnerID)).
			Arg(clientID, scope).
			Build(),
	).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}
	if updated == 0 {
		return storage.ErrApprovalNotFound
	}
	return nil
}

// DeleteApproval removes an approval
func (s *Store) DeleteApproval(ctx context.Context, clientID, resourceOwnerID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_approval")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "delete_approval", err, startTime) }()

	n, err := s.client.Do(ctx,
		s.client.B().Hdel().Key(s.approvalsKey(resourceOwnerID)).Field(clientID).Build(),
	).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete approval: %w", err)
	}
	if n == 0 {
		return storage.ErrApprovalNotFound
	}
	return nil
}

// ListApprovals returns the approvals of a resource owner ordered by client ID
func (s *Store) ListApprovals(ctx context.Context, resourceOwnerID string) ([]*storage.Approval, error) {
	entries, err := s.client.Do(ctx,
		s.client.B().Hgetall().Key(s.approvalsKey(resourceOwnerID)).Build(),
	).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	approvals := make([]*storage.Approval, 0, len(entries))
	for clientID, scope := range entries {
		approvals = append(approvals, &storage.Approval{
			ClientID:        clientID,
			ResourceOwnerID: resourceOwnerID,
			Scope:           scope,
		})
	}
	slices.SortFunc(approvals, func(a, b *storage.Approval) int { return strings.Compare(a.ClientID, b.ClientID) })
	return approvals, nil
}
