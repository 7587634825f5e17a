// Package storage provides the persistence contracts for clients, approvals,
// authorization codes and tokens.
//
// The Storage interface is the only stateful collaborator of the authorization
// server. It is composed of:
//   - ClientStore: registered clients
//   - ApprovalStore: standing resource owner consent per client
//   - CodeStore: authorization codes, with atomic exactly-once deletion
//   - TokenStore: access and refresh tokens
//
// Lookups report misses through sentinel errors that all match ErrNotFound, so a
// miss can be told apart from a failing backend with errors.Is.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/mock: Hookable storage for unit testing
//   - storage/valkey: Valkey/Redis-compatible distributed storage
//   - storage/sqlstore: SQL storage on bun (SQLite, PostgreSQL, MySQL)
package storage
