package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-server/internal/testutil"
	"github.com/giantswarm/oauth-server/storage/memory"
	"github.com/giantswarm/oauth-server/storage/sqlstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStorage_Memory(t *testing.T) {
	for _, backend := range []string{"", StorageMemory} {
		store, closeStore, err := openStorage(storageConfig{Backend: backend}, discardLogger())
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, store)
		closeStore()
	}
}

func TestOpenStorage_SQLite(t *testing.T) {
	dsn := fmt.Sprintf("file:cmd-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	store, closeStore, err := openStorage(storageConfig{
		Backend:         sqlstore.DriverSQLite,
		DSN:             dsn,
		CleanupInterval: time.Hour,
	}, discardLogger())
	require.NoError(t, err)
	defer closeStore()

	assert.IsType(t, &sqlstore.Store{}, store)

	ctx := context.Background()
	require.NoError(t, store.SaveClient(ctx, testutil.WebClient()))
	got, err := store.GetClient(ctx, testutil.WebClientID)
	require.NoError(t, err)
	assert.Equal(t, testutil.WebClientURI, got.RedirectURI)
}

func TestOpenStorage_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  storageConfig
	}{
		{name: "unknown backend", cfg: storageConfig{Backend: "cassandra"}},
		{name: "sql without dsn", cfg: storageConfig{Backend: sqlstore.DriverSQLite}},
		{name: "bad encryption key", cfg: storageConfig{Backend: StorageValkey, ValkeyAddress: "127.0.0.1:1", EncryptionKey: "not-base64!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := openStorage(tt.cfg, discardLogger())
			assert.Error(t, err)
		})
	}
}
