// Package memory provides an in-memory implementation of storage.Storage.
//
// It is suitable for development, testing, and single-instance deployments where
// persistence is not required.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Atomic authorization code deletion (exactly one concurrent redeemer wins)
//   - Background cleanup of expired authorization codes and access tokens
//   - Storage size gauges when instrumentation is set
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := server.New(store, config, logger)
package memory
