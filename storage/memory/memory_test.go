package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/internal/testutil"
	"github.com/giantswarm/oauth-server/storage"
)

// ============================================================
// ClientStore Tests
// ============================================================

func TestStore_SaveClient(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	if err := store.SaveClient(ctx, testutil.WebClient()); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := store.GetClient(ctx, testutil.WebClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.RedirectURI != testutil.WebClientURI || got.Type != storage.ClientTypeWebApplication {
		t.Errorf("GetClient() = %+v", got)
	}

	// Returned values are copies.
	got.RedirectURI = "https://evil.example.com"
	again, _ := store.GetClient(ctx, testutil.WebClientID)
	if again.RedirectURI != testutil.WebClientURI {
		t.Error("GetClient() leaked internal state")
	}
}

func TestStore_SaveClient_Invalid(t *testing.T) {
	store := New()
	defer store.Stop()

	for _, c := range []*storage.Client{nil, {Name: "no id"}} {
		if err := store.SaveClient(context.Background(), c); err == nil {
			t.Errorf("SaveClient(%v) should return error", c)
		}
	}
}

func TestStore_GetClient_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.GetClient(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
	if !storage.IsNotFound(err) {
		t.Error("IsNotFound() = false")
	}
}

func TestStore_DeleteClient(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	_ = store.SaveClient(ctx, testutil.WebClient())
	if err := store.DeleteClient(ctx, testutil.WebClientID); err != nil {
		t.Fatalf("DeleteClient() error = %v", err)
	}
	if _, err := store.GetClient(ctx, testutil.WebClientID); !storage.IsNotFound(err) {
		t.Errorf("GetClient() after delete error = %v", err)
	}
	if err := store.DeleteClient(ctx, testutil.WebClientID); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("second DeleteClient() error = %v", err)
	}
}

func TestStore_ListClients(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	_ = store.SaveClient(ctx, testutil.WebClient())
	_ = store.SaveClient(ctx, testutil.AgentClient())
	_ = store.SaveClient(ctx, testutil.NativeClient())

	clients, err := store.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	want := []string{testutil.AgentClientID, testutil.NativeClientID, testutil.WebClientID}
	if len(clients) != len(want) {
		t.Fatalf("ListClients() returned %d clients, want %d", len(clients), len(want))
	}
	for i, c := range clients {
		if c.ID != want[i] {
			t.Errorf("clients[%d] = %q, want %q", i, c.ID, want[i])
		}
	}
}

// ============================================================
// ApprovalStore Tests
// ============================================================

func TestStore_Approvals(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	if _, err := store.GetApproval(ctx, "webapp1", "alice"); !errors.Is(err, storage.ErrApprovalNotFound) {
		t.Fatalf("GetApproval() error = %v, want ErrApprovalNotFound", err)
	}
	if err := store.UpdateApproval(ctx, "webapp1", "alice", "read"); !errors.Is(err, storage.ErrApprovalNotFound) {
		t.Errorf("UpdateApproval() on missing approval error = %v", err)
	}

	if err := store.AddApproval(ctx, "webapp1", "alice", "read"); err != nil {
		t.Fatalf("AddApproval() error = %v", err)
	}
	if err := store.AddApproval(ctx, "webapp1", "alice", "write"); !errors.Is(err, storage.ErrApprovalExists) {
		t.Errorf("duplicate AddApproval() error = %v, want ErrApprovalExists", err)
	}
	if err := store.UpdateApproval(ctx, "webapp1", "alice", "read write"); err != nil {
		t.Fatalf("UpdateApproval() error = %v", err)
	}

	got, err := store.GetApproval(ctx, "webapp1", "alice")
	if err != nil {
		t.Fatalf("GetApproval() error = %v", err)
	}
	if got.Scope != "read write" {
		t.Errorf("Scope = %q, want %q", got.Scope, "read write")
	}

	if err := store.DeleteApproval(ctx, "webapp1", "alice"); err != nil {
		t.Fatalf("DeleteApproval() error = %v", err)
	}
	if err := store.DeleteApproval(ctx, "webapp1", "alice"); !errors.Is(err, storage.ErrApprovalNotFound) {
		t.Errorf("second DeleteApproval() error = %v", err)
	}
}

func TestStore_ListApprovals(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	_ = store.AddApproval(ctx, "webapp1", "alice", "read")
	_ = store.AddApproval(ctx, "agent1", "alice", "profile")
	_ = store.AddApproval(ctx, "webapp1", "bob", "read")

	approvals, err := store.ListApprovals(ctx, "alice")
	if err != nil {
		t.Fatalf("ListApprovals() error = %v", err)
	}
	if len(approvals) != 2 || approvals[0].ClientID != "agent1" || approvals[1].ClientID != "webapp1" {
		t.Errorf("ListApprovals() = %+v", approvals)
	}

	none, _ := store.ListApprovals(ctx, "carol")
	if len(none) != 0 {
		t.Errorf("ListApprovals(carol) = %+v, want empty", none)
	}
}

// ============================================================
// CodeStore Tests
// ============================================================

func TestStore_AuthorizationCode(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	code := testutil.AuthorizationCode("abc123", time.Now().Unix())
	if err := store.StoreAuthorizationCode(ctx, code); err != nil {
		t.Fatalf("StoreAuthorizationCode() error = %v", err)
	}

	got, err := store.GetAuthorizationCode(ctx, "abc123", testutil.WebClientURI)
	if err != nil {
		t.Fatalf("GetAuthorizationCode() error = %v", err)
	}
	if got.ResourceOwnerID != "alice" || got.Scope != "profile read" {
		t.Errorf("GetAuthorizationCode() = %+v", got)
	}

	// The redirect URI is part of the key.
	if _, err := store.GetAuthorizationCode(ctx, "abc123", ""); !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("GetAuthorizationCode() with other redirect URI error = %v", err)
	}
	if deleted, _ := store.DeleteAuthorizationCode(ctx, "abc123", "https://other.example.com"); deleted {
		t.Error("DeleteAuthorizationCode() with other redirect URI should not delete")
	}

	deleted, err := store.DeleteAuthorizationCode(ctx, "abc123", testutil.WebClientURI)
	if err != nil || !deleted {
		t.Fatalf("DeleteAuthorizationCode() = %v, %v; want true, nil", deleted, err)
	}
	deleted, err = store.DeleteAuthorizationCode(ctx, "abc123", testutil.WebClientURI)
	if err != nil || deleted {
		t.Errorf("second DeleteAuthorizationCode() = %v, %v; want false, nil", deleted, err)
	}
}

func TestStore_StoreAuthorizationCode_Invalid(t *testing.T) {
	store := New()
	defer store.Stop()

	if err := store.StoreAuthorizationCode(context.Background(), nil); err == nil {
		t.Error("StoreAuthorizationCode(nil) should return error")
	}
	if err := store.StoreAuthorizationCode(context.Background(), &storage.AuthorizationCode{}); err == nil {
		t.Error("StoreAuthorizationCode() without code should return error")
	}
}

func TestStore_DeleteAuthorizationCode_Concurrent(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	_ = store.StoreAuthorizationCode(ctx, testutil.AuthorizationCode("race", time.Now().Unix()))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if deleted, _ := store.DeleteAuthorizationCode(ctx, "race", testutil.WebClientURI); deleted {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d goroutines deleted the code, want exactly 1", wins.Load())
	}
}

// ============================================================
// TokenStore Tests
// ============================================================

func TestStore_AccessToken(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	if err := store.StoreAccessToken(ctx, testutil.AccessToken("at1", 1000, 3600)); err != nil {
		t.Fatalf("StoreAccessToken() error = %v", err)
	}
	got, err := store.GetAccessToken(ctx, "at1")
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got.ExpiresAt() != 4600 {
		t.Errorf("ExpiresAt() = %d, want 4600", got.ExpiresAt())
	}
	if _, err := store.GetAccessToken(ctx, "missing"); !errors.Is(err, storage.ErrAccessTokenNotFound) {
		t.Errorf("GetAccessToken(missing) error = %v", err)
	}
	if err := store.StoreAccessToken(ctx, nil); err == nil {
		t.Error("StoreAccessToken(nil) should return error")
	}
}

func TestStore_RefreshToken(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	rt := &storage.RefreshToken{Token: "rt1", ClientID: "webapp1", ResourceOwnerID: "alice", Scope: "read"}
	if err := store.StoreRefreshToken(ctx, rt); err != nil {
		t.Fatalf("StoreRefreshToken() error = %v", err)
	}
	got, err := store.GetRefreshToken(ctx, "rt1")
	if err != nil {
		t.Fatalf("GetRefreshToken() error = %v", err)
	}
	if *got != *rt {
		t.Errorf("GetRefreshToken() = %+v, want %+v", got, rt)
	}
	if _, err := store.GetRefreshToken(ctx, "missing"); !errors.Is(err, storage.ErrRefreshTokenNotFound) {
		t.Errorf("GetRefreshToken(missing) error = %v", err)
	}
}

// ============================================================
// Cleanup Tests
// ============================================================

func TestStore_Cleanup(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	clock := testutil.NewMockTime(time.Unix(10_000, 0))
	store.SetClock(clock.Now)
	store.SetAuthorizationCodeTTL(600 * time.Second)

	_ = store.StoreAuthorizationCode(ctx, testutil.AuthorizationCode("old", 10_000-601))
	_ = store.StoreAuthorizationCode(ctx, testutil.AuthorizationCode("edge", 10_000-600))
	_ = store.StoreAccessToken(ctx, testutil.AccessToken("expired", 5_000, 3600))
	_ = store.StoreAccessToken(ctx, testutil.AccessToken("live", 9_000, 3600))
	_ = store.StoreRefreshToken(ctx, &storage.RefreshToken{Token: "rt", ClientID: "webapp1"})

	if cleaned := store.cleanup(); cleaned != 2 {
		t.Errorf("cleanup() = %d, want 2", cleaned)
	}

	if _, err := store.GetAuthorizationCode(ctx, "old", testutil.WebClientURI); !storage.IsNotFound(err) {
		t.Error("expired code was not purged")
	}
	if _, err := store.GetAuthorizationCode(ctx, "edge", testutil.WebClientURI); err != nil {
		t.Error("code at the expiry boundary was purged")
	}
	if _, err := store.GetAccessToken(ctx, "expired"); !storage.IsNotFound(err) {
		t.Error("expired access token was not purged")
	}
	if _, err := store.GetAccessToken(ctx, "live"); err != nil {
		t.Error("live access token was purged")
	}
	if _, err := store.GetRefreshToken(ctx, "rt"); err != nil {
		t.Error("refresh token was purged")
	}
}

func TestStore_ConcurrentClientAccess(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.SaveClient(ctx, testutil.WebClient())
		}()
		go func() {
			defer wg.Done()
			_, _ = store.GetClient(ctx, testutil.WebClientID)
		}()
	}
	wg.Wait()

	if n := store.clientsCount.Load(); n != 1 {
		t.Errorf("clientsCount = %d, want 1", n)
	}
}

func TestStore_SetInstrumentation(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	_ = store.SaveClient(ctx, testutil.WebClient())

	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(ctx) }()

	store.SetInstrumentation(inst)
	if store.clientsCount.Load() != 1 {
		t.Errorf("clientsCount = %d, want 1", store.clientsCount.Load())
	}

	// Operations keep working with spans and metrics enabled.
	if _, err := store.GetClient(ctx, "missing"); !storage.IsNotFound(err) {
		t.Errorf("GetClient() error = %v", err)
	}
	if _, err := store.GetClient(ctx, testutil.WebClientID); err != nil {
		t.Errorf("GetClient() error = %v", err)
	}
}

func TestStore_SetLogger(t *testing.T) {
	store := New()
	defer store.Stop()

	store.SetLogger(slog.New(slog.DiscardHandler))
	if err := store.SaveClient(context.Background(), testutil.WebClient()); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}
	store.Stop()
}
