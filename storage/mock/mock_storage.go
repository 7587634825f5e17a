// Package mock provides a hookable implementation of storage.Storage for testing.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/oauth-server/storage"
	"github.com/giantswarm/oauth-server/storage/memory"
)

// MockStorage delegates to an in-memory store unless a hook is set. Hooks let
// tests inject backend failures and lost races.
type MockStorage struct {
	*memory.Store

	GetClientFunc               func(ctx context.Context, clientID string) (*storage.Client, error)
	SaveClientFunc              func(ctx context.Context, client *storage.Client) error
	GetApprovalFunc             func(ctx context.Context, clientID, ownerID string) (*storage.Approval, error)
	AddApprovalFunc             func(ctx context.Context, clientID, ownerID, scope string) error
	UpdateApprovalFunc          func(ctx context.Context, clientID, ownerID, scope string) error
	StoreAuthorizationCodeFunc  func(ctx context.Context, code *storage.AuthorizationCode) error
	GetAuthorizationCodeFunc    func(ctx context.Context, code, redirectURI string) (*storage.AuthorizationCode, error)
	DeleteAuthorizationCodeFunc func(ctx context.Context, code, redirectURI string) (bool, error)
	StoreAccessTokenFunc        func(ctx context.Context, token *storage.AccessToken) error
	GetAccessTokenFunc          func(ctx context.Context, token string) (*storage.AccessToken, error)
	StoreRefreshTokenFunc       func(ctx context.Context, token *storage.RefreshToken) error
	GetRefreshTokenFunc         func(ctx context.Context, token string) (*storage.RefreshToken, error)

	mu         sync.Mutex
	callCounts map[string]int
}

var _ storage.Storage = (*MockStorage)(nil)

// NewMockStorage creates a mock backed by a fresh memory store. Call Stop when done.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		Store:      memory.New(),
		callCounts: make(map[string]int),
	}
}

func (m *MockStorage) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCounts[name]++
}

// CallCount returns how often the named method was called
func (m *MockStorage) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[name]
}

// ResetCallCounts resets all call counters
func (m *MockStorage) ResetCallCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCounts = make(map[string]int)
}

// GetClient retrieves a client by ID
func (m *MockStorage) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.count("GetClient")
	if m.GetClientFunc != nil {
		return m.GetClientFunc(ctx, clientID)
	}
	return m.Store.GetClient(ctx, clientID)
}

// SaveClient creates or replaces a client registration
func (m *MockStorage) SaveClient(ctx context.Context, client *storage.Client) error {
	m.count("SaveClient")
	if m.SaveClientFunc != nil {
		return m.SaveClientFunc(ctx, client)
	}
	return m.Store.SaveClient(ctx, client)
}

// GetApproval returns the approval of an owner for a client
func (m *MockStorage) GetApproval(ctx context.Context, clientID, ownerID string) (*storage.Approval, error) {
	m.count("GetApproval")
	if m.GetApprovalFunc != nil {
		return m.GetApprovalFunc(ctx, clientID, ownerID)
	}
	return m.Store.GetApproval(ctx, clientID, ownerID)
}

// AddApproval stores a new approval
func (m *MockStorage) AddApproval(ctx context.Context, clientID, ownerID, scope string) error {
	m.count("AddApproval")
	if m.AddApprovalFunc != nil {
		return m.AddApprovalFunc(ctx, clientID, ownerID, scope)
	}
	return m.Store.AddApproval(ctx, clientID, ownerID, scope)
}

// UpdateApproval replaces the scope of an approval
func (m *MockStorage) UpdateApproval(ctx context.Context, clientID, ownerID, scope string) error {
	m.count("UpdateApproval")
	if m.UpdateApprovalFunc != nil {
		return m.UpdateApprovalFunc(ctx, clientID, ownerID, scope)
	}
	return m.Store.UpdateApproval(ctx, clientID, ownerID, scope)
}

// StoreAuthorizationCode saves an issued code
func (m *MockStorage) StoreAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.count("StoreAuthorizationCode")
	if m.StoreAuthorizationCodeFunc != nil {
		return m.StoreAuthorizationCodeFunc(ctx, code)
	}
	return m.Store.StoreAuthorizationCode(ctx, code)
}

// GetAuthorizationCode looks up a code
func (m *MockStorage) GetAuthorizationCode(ctx context.Context, code, redirectURI string) (*storage.AuthorizationCode, error) {
	m.count("GetAuthorizationCode")
	if m.GetAuthorizationCodeFunc != nil {
		return m.GetAuthorizationCodeFunc(ctx, code, redirectURI)
	}
	return m.Store.GetAuthorizationCode(ctx, code, redirectURI)
}

// DeleteAuthorizationCode removes a code
func (m *MockStorage) DeleteAuthorizationCode(ctx context.Context, code, redirectURI string) (bool, error) {
	m.count("DeleteAuthorizationCode")
	if m.DeleteAuthorizationCodeFunc != nil {
		return m.DeleteAuthorizationCodeFunc(ctx, code, redirectURI)
	}
	return m.Store.DeleteAuthorizationCode(ctx, code, redirectURI)
}

// StoreAccessToken saves an access token
func (m *MockStorage) StoreAccessToken(ctx context.Context, token *storage.AccessToken) error {
	m.count("StoreAccessToken")
	if m.StoreAccessTokenFunc != nil {
		return m.StoreAccessTokenFunc(ctx, token)
	}
	return m.Store.StoreAccessToken(ctx, token)
}

// GetAccessToken looks up an access token
func (m *MockStorage) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	m.count("GetAccessToken")
	if m.GetAccessTokenFunc != nil {
		return m.GetAccessTokenFunc(ctx, token)
	}
	return m.Store.GetAccessToken(ctx, token)
}

// StoreRefreshToken saves a refresh token
func (m *MockStorage) StoreRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	m.count("StoreRefreshToken")
	if m.StoreRefreshTokenFunc != nil {
		return m.StoreRefreshTokenFunc(ctx, token)
	}
	return m.Store.StoreRefreshToken(ctx, token)
}

// GetRefreshToken looks up a refresh token
func (m *MockStorage) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	m.count("GetRefreshToken")
	if m.GetRefreshTokenFunc != nil {
		return m.GetRefreshTokenFunc(ctx, token)
	}
	return m.Store.GetRefreshToken(ctx, token)
}
