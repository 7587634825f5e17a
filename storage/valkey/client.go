package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/giantswarm/oauth-server/storage"
)

// clientJSON is the stored representation of a client. Secret is sealed when an
// encryptor is configured.
type clientJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	RedirectURI string `json:"redirect_uri"`
	Secret      string `json:"secret,omitempty"`
	SecretHash  string `json:"secret_hash,omitempty"`
	Registered  bool   `json:"registered"`
}

func (s *Store) toClientJSON(client *storage.Client) (*clientJSON, error) {
	secret, err := s.getEncryptor().Seal(client.Secret, "client:"+client.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to seal client secret: %w", err)
	}
	return &clientJSON{
		ID:          client.ID,
		Name:        client.Name,
		Description: client.Description,
		Type:        string(client.Type),
		RedirectURI: client.RedirectURI,
		Secret:      secret,
		SecretHash:  client.SecretHash,
		Registered:  client.Registered,
	}, nil
}

func (s *Store) fromClientJSON(j *clientJSON) (*storage.Client, error) {
	secret, err := s.getEncryptor().Open(j.Secret, "client:"+j.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open client secret: %w", err)
	}
	return &storage.Client{
		ID:          j.ID,
		Name:        j.Name,
		Description: j.Description,
		Type:        storage.ClientType(j.Type),
		RedirectURI: j.RedirectURI,
		Secret:      secret,
		SecretHash:  j.SecretHash,
		Registered:  j.Registered,
	}, nil
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient creates or replaces a client registration
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "save_client", err, startTime) }()

	if client == nil || client.ID == "" {
		return fmt.Errorf("invalid client: ID is required")
	}

	j, err := s.toClientJSON(client)
	if err != nil {
		return err
	}
	if err := s.setJSON(ctx, s.clientKey(client.ID), j, 0); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_client", err, startTime) }()

	return getAndUnmarshal(ctx, s, s.clientKey(clientID), storage.ErrClientNotFound, s.fromClientJSON)
}

// DeleteClient removes a client registration
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_client")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "delete_client", err, startTime) }()

	n, err := s.client.Do(ctx, s.client.B().Del().Key(s.clientKey(clientID)).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	return nil
}

// ListClients lists all registered clients ordered by ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	pattern := s.clientKey("*")

	// SCAN can return the same key more than once
	clientMap := make(map[string]*storage.Client)

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan clients: %w", err)
		}

		for _, key := range result.Elements {
			if _, exists := clientMap[key]; exists {
				continue
			}

			data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
			if err != nil {
				if isNilError(err) {
					continue // deleted between SCAN and GET
				}
				return nil, fmt.Errorf("failed to get client %s: %w", key, err)
			}

			var j clientJSON
			if err := json.Unmarshal([]byte(data), &j); err != nil {
				s.logger.Warn("Failed to unmarshal client, skipping", "key", key, "error", err)
				continue
			}
			c, err := s.fromClientJSON(&j)
			if err != nil {
				s.logger.Warn("Failed to decode client, skipping", "key", key, "error", err)
				continue
			}
			clientMap[key] = c
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	clients := make([]*storage.Client, 0, len(clientMap))
	for _, c := range clientMap {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b *storage.Client) int { return strings.Compare(a.ID, b.ID) })

	return clients, nil
}
