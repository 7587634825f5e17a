package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/internal/util"
	"github.com/giantswarm/oauth-server/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging credentials
	tokenIDLogLength = 8

	// DefaultAuthorizationCodeTTL is how long an unredeemed code is kept
	DefaultAuthorizationCodeTTL = 600 * time.Second
)

type approvalKey struct {
	clientID string
	ownerID  string
}

type codeKey struct {
	code        string
	redirectURI string
}

// Store is an in-memory implementation of storage.Storage.
type Store struct {
	mu sync.RWMutex

	clients       map[string]*storage.Client
	approvals     map[approvalKey]*storage.Approval
	codes         map[codeKey]*storage.AuthorizationCode
	accessTokens  map[string]*storage.AccessToken
	refreshTokens map[string]*storage.RefreshToken

	codeTTL int64 // seconds
	now     func() time.Time

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCount       atomic.Int64
	approvalsCount     atomic.Int64
	codesCount         atomic.Int64
	accessTokensCount  atomic.Int64
	refreshTokensCount atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.Storage       = (*Store)(nil)
	_ storage.ClientStore   = (*Store)(nil)
	_ storage.ApprovalStore = (*Store)(nil)
	_ storage.CodeStore     = (*Store)(nil)
	_ storage.TokenStore    = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		approvals:       make(map[approvalKey]*storage.Approval),
		codes:           make(map[codeKey]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*storage.AccessToken),
		refreshTokens:   make(map[string]*storage.RefreshToken),
		codeTTL:         int64(DefaultAuthorizationCodeTTL / time.Second),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock replaces the time source used to expire entries
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetAuthorizationCodeTTL sets how long codes are kept before cleanup purges them.
// The server calls this with its own code lifetime.
func (s *Store) SetAuthorizationCodeTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeTTL = int64(ttl / time.Second)
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	s.clientsCount.Store(int64(len(s.clients)))
	s.approvalsCount.Store(int64(len(s.approvals)))
	s.codesCount.Store(int64(len(s.codes)))
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	s.refreshTokensCount.Store(int64(len(s.refreshTokens)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(instrumentation.StorageSizeCallbacks{
			Clients:            s.clientsCount.Load,
			Approvals:          s.approvalsCount.Load,
			AuthorizationCodes: s.codesCount.Load,
			AccessTokens:       s.accessTokensCount.Load,
			RefreshTokens:      s.refreshTokensCount.Load,
		})
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ============================================================
// ClientStore Implementation
// ============================================================

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.Client, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_client", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	cp := *c
	return &cp, nil
}

// SaveClient creates or replaces a client registration
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "save_client", err, startTime) }()

	if client == nil || client.ID == "" {
		return fmt.Errorf("invalid client: ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.clients[client.ID]; !existed {
		s.clientsCount.Add(1)
	}
	cp := *client
	s.clients[client.ID] = &cp

	s.logger.Debug("Saved client", "client_id", client.ID, "client_type", client.Type)
	return nil
}

// DeleteClient removes a client registration
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_client")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "delete_client", err, startTime) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	delete(s.clients, clientID)
	s.clientsCount.Add(-1)
	return nil
}

// ListClients lists all registered clients ordered by ID
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, c := range s.clients {
		cp := *c
		clients = append(clients, &cp)
	}
	slices.SortFunc(clients, func(a, b *storage.Client) int { return strings.Compare(a.ID, b.ID) })

	return clients, nil
}

// ============================================================
// ApprovalStore Implementation
// ============================================================

// GetApproval returns the approval a resource owner gave a client
func (s *Store) GetApproval(ctx context.Context, clientID, resourceOwnerID string) (approval *storage.Approval, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_approval")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_approval", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.approvals[approvalKey{clientID, resourceOwnerID}]
	if !ok {
		return nil, storage.ErrApprovalNotFound
	}
	cp := *a
	return &cp, nil
}

// AddApproval stores a new approval. It fails with ErrApprovalExists if one is present.
func (s *Store) AddApproval(ctx context.Context, clientID, resourceOwnerID, scope string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "add_approval")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "add_approval", err, startTime) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := approvalKey{clientID, resourceOwnerID}
	if _, ok := s.approvals[key]; ok {
		return storage.ErrApprovalExists
	}
	s.approvals[key] = &storage.Approval{ClientID: clientID, ResourceOwnerID: resourceOwnerID, Scope: scope}
	s.approvalsCount.Add(1)
	return nil
}

// UpdateApproval replaces the scope of an existing approval
func (s *Store) UpdateApproval(ctx context.Context, clientID, resourceOwnerID, scope string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "update_approval")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "update_approval", err, startTime) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[approvalKey{clientID, resourceOwnerID}]
	if !ok {
		return storage.ErrApprovalNotFound
	}
	a.Scope = scope
	return nil
}

// DeleteApproval removes an approval
func (s *Store) DeleteApproval(ctx context.Context, clientID, resourceOwnerID string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_approval")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "delete_approval", err, startTime) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := approvalKey{clientID, resourceOwnerID}
	if _, ok := s.approvals[key]; !ok {
		return storage.ErrApprovalNotFound
	}
	delete(s.approvals, key)
	s.approvalsCount.Add(-1)
	return nil
}

// ListApprovals returns the approvals of a resource owner ordered by client ID
func (s *Store) ListApprovals(ctx context.Context, resourceOwnerID string) ([]*storage.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Approval
	for key, a := range s.approvals {
		if key.ownerID == resourceOwnerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *storage.Approval) int { return strings.Compare(a.ClientID, b.ClientID) })
	return out, nil
}

// ============================================================
// CodeStore Implementation
// ============================================================

// StoreAuthorizationCode saves an issued code
func (s *Store) StoreAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "store_code")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "store_code", err, startTime) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey{code.Code, code.RedirectURI}
	if _, existed := s.codes[key]; !existed {
		s.codesCount.Add(1)
	}
	cp := *code
	s.codes[key] = &cp

	s.logger.Debug("Stored authorization code",
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.codes[codeKey{code, redirectURI}]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	cp := *c
	return &cp, nil
}

// DeleteAuthorizationCode removes a code. Only the call that actually removed
// it returns true.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code, redirectURI string) (deleted bool, err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_code")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "delete_code", err, startTime) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey{code, redirectURI}
	if _, ok := s.codes[key]; !ok {
		return false, nil
	}
	delete(s.codes, key)
	s.codesCount.Add(-1)
	return true, nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// StoreAccessToken saves an issued access token
func (s *Store) StoreAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "store_access_token")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "store_access_token", err, startTime) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.accessTokens[token.Token]; !existed {
		s.accessTokensCount.Add(1)
	}
	cp := *token
	s.accessTokens[token.Token] = &cp
	return nil
}

// GetAccessToken looks up an access token
func (s *Store) GetAccessToken(ctx context.Context, token string) (at *storage.AccessToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_access_token", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.accessTokens[token]
	if !ok {
		return nil, storage.ErrAccessTokenNotFound
	}
	cp := *t
	return &cp, nil
}

// StoreRefreshToken saves an issued refresh token
func (s *Store) StoreRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "store_refresh_token")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "store_refresh_token", err, startTime) }()

	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.refreshTokens[token.Token]; !existed {
		s.refreshTokensCount.Add(1)
	}
	cp := *token
	s.refreshTokens[token.Token] = &cp
	return nil
}

// GetRefreshToken looks up a refresh token
func (s *Store) GetRefreshToken(ctx context.Context, token string) (rt *storage.RefreshToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_refresh_token")
	defer span.End()
	startTime := time.Now()
	defer func() { s.recordStorageOperation(ctx, span, "get_refresh_token", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.refreshTokens[token]
	if !ok {
		return nil, storage.ErrRefreshTokenNotFound
	}
	cp := *t
	return &cp, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup purges expired authorization codes and access tokens. Refresh tokens
// never expire and are kept.
func (s *Store) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	cleaned := 0

	for key, code := range s.codes {
		if now > code.IssueTime+s.codeTTL {
			delete(s.codes, key)
			s.codesCount.Add(-1)
			cleaned++
		}
	}

	for token, at := range s.accessTokens {
		if now > at.ExpiresAt() {
			delete(s.accessTokens, token)
			s.accessTokensCount.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
	return cleaned
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))
}

// recordStorageOperation records metrics for a storage operation and sets span status.
// Lookup misses count as "not_found" rather than errors.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := "success"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case storage.IsNotFound(err):
		result = "not_found"
	default:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
