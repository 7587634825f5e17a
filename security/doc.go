// Package security provides the credential primitives and HTTP hardening used by
// the authorization server.
//
// # Credentials
//
// GenerateToken mints every opaque credential (authorization codes, access
// tokens, refresh tokens) from 16 bytes of crypto/rand, hex encoded. It panics
// when the random source fails.
//
// ParseBasicAuth and VerifyBasicAuth implement client authentication at the
// token endpoint. VerifyBasicAuthHash does the same against a bcrypt hash.
//
// # Rate Limiting
//
// RateLimiter keeps a token bucket (golang.org/x/time/rate) per key with LRU
// eviction, so a flood of distinct client IPs cannot grow memory without bound.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // reject
//	}
//
// # Audit Logging
//
// Auditor writes "security_audit" records through log/slog. Resource owner IDs
// are replaced by a short SHA-256 fingerprint. Event names are listed in events.go.
//
// # Encryption at Rest
//
// Encryptor seals client secrets with AES-256-GCM, binding each value to the key
// of the record it belongs to.
package security
