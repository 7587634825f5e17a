package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/storage"
)

// ErrInvalidClientRegistration is returned by SaveClient for invalid input
var ErrInvalidClientRegistration = errors.New("invalid client registration")

// dangerousSchemes can execute code in the user agent and are never valid redirect targets
var dangerousSchemes = []string{"javascript", "data", "file", "vbscript", "about"}

// ListApprovals returns the standing approvals of a resource owner
func (s *Server) ListApprovals(ctx context.Context, resourceOwnerID string) ([]*storage.Approval, error) {
	approvals, err := s.store.ListApprovals(ctx, resourceOwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return approvals, nil
}

// RevokeApproval removes the approval a resource owner gave a client.
// Already issued tokens stay valid until they expire.
func (s *Server) RevokeApproval(ctx context.Context, clientID, resourceOwnerID string) error {
	if err := s.store.DeleteApproval(ctx, clientID, resourceOwnerID); err != nil {
		return fmt.Errorf("failed to revoke approval: %w", err)
	}

	s.audit(ctx, security.Event{
		Type:            security.EventApprovalRevoked,
		ResourceOwnerID: resourceOwnerID,
		ClientID:        clientID,
	})
	return nil
}

// ListClients returns all registered clients
func (s *Server) ListClients(ctx context.Context) ([]*storage.Client, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

// SaveClient validates and stores a client registration. Validation
// failures wrap ErrInvalidClientRegistration.
func (s *Server) SaveClient(ctx context.Context, client *storage.Client) error {
	if err := ValidateClient(client); err != nil {
		return err
	}
	client.Registered = true

	if err := s.store.SaveClient(ctx, client); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.audit(ctx, security.Event{
		Type:     security.EventClientSaved,
		ClientID: client.ID,
		Details:  map[string]any{"client_type": string(client.Type)},
	})
	s.Logger.Info("Saved client", "client_id", client.ID, "client_type", client.Type)
	return nil
}

// DeleteClient removes a client registration
func (s *Server) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.store.DeleteClient(ctx, clientID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	s.audit(ctx, security.Event{
		Type:     security.EventClientDeleted,
		ClientID: clientID,
	})
	s.Logger.Info("Deleted client", "client_id", clientID)
	return nil
}

// ValidateClient checks a registration before it is stored
func ValidateClient(client *storage.Client) error {
	if client == nil {
		return fmt.Errorf("%w: client is required", ErrInvalidClientRegistration)
	}
	if client.ID == "" || len(client.ID) > maxClientIDLength {
		return fmt.Errorf("%w: client id must be 1 to %d characters", ErrInvalidClientRegistration, maxClientIDLength)
	}
	if !client.Type.Valid() {
		return fmt.Errorf("%w: unknown client type %q", ErrInvalidClientRegistration, client.Type)
	}
	if client.RedirectURI == "" {
		return fmt.Errorf("%w: redirect URI is required", ErrInvalidClientRegistration)
	}
	u, err := url.Parse(client.RedirectURI)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("%w: redirect URI must be absolute", ErrInvalidClientRegistration)
	}
	if slices.Contains(dangerousSchemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%w: redirect URI scheme %q is not allowed", ErrInvalidClientRegistration, u.Scheme)
	}
	if strings.Contains(client.RedirectURI, "#") {
		return fmt.Errorf("%w: redirect URI must not contain a fragment", ErrInvalidClientRegistration)
	}
	if client.Type == storage.ClientTypeWebApplication && !client.HasSecret() {
		return fmt.Errorf("%w: web applications need a secret", ErrInvalidClientRegistration)
	}
	return nil
}
