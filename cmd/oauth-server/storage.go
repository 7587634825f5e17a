package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/storage"
	"github.com/giantswarm/oauth-server/storage/memory"
	"github.com/giantswarm/oauth-server/storage/sqlstore"
	"github.com/giantswarm/oauth-server/storage/valkey"
)

// Storage backends selectable with --storage
const (
	StorageMemory = "memory"
	StorageValkey = "valkey"
)

// storageConfig selects and configures the storage backend
type storageConfig struct {
	Backend string

	// SQL backends (sqlite, postgres, mysql)
	DSN             string
	CleanupInterval time.Duration
	Debug           bool

	// Valkey backend
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string

	// EncryptionKey is a base64 AES-256 key sealing client secrets in Valkey
	EncryptionKey string
}

// openStorage creates the configured backend. The returned function releases it.
func openStorage(cfg storageConfig, logger *slog.Logger) (storage.Storage, func(), error) {
	switch cfg.Backend {
	case "", StorageMemory:
		store := memory.New()
		store.SetLogger(logger)
		logger.Warn("Using in-memory storage; all state is lost on restart")
		return store, store.Stop, nil

	case StorageValkey:
		var enc *security.Encryptor
		if cfg.EncryptionKey != "" {
			key, err := security.KeyFromBase64(cfg.EncryptionKey)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid encryption key: %w", err)
			}
			if enc, err = security.NewEncryptor(key); err != nil {
				return nil, nil, err
			}
		} else {
			logger.Warn("⚠️  SECURITY NOTICE: Client secrets are stored unencrypted in Valkey",
				"recommendation", "Set storage.encryption-key")
		}

		store, err := valkey.New(valkey.Config{
			Address:   cfg.ValkeyAddress,
			Password:  cfg.ValkeyPassword,
			DB:        cfg.ValkeyDB,
			KeyPrefix: cfg.ValkeyKeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		if enc != nil {
			store.SetEncryptor(enc)
		}
		return store, store.Close, nil

	case sqlstore.DriverSQLite, sqlstore.DriverPostgres, sqlstore.DriverMySQL:
		store, err := sqlstore.Open(sqlstore.Config{
			Driver:          cfg.Backend,
			DSN:             cfg.DSN,
			CleanupInterval: cfg.CleanupInterval,
			Debug:           cfg.Debug,
			Logger:          logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close database", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
