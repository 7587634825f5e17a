// Package valkey provides a Valkey storage backend for the authorization server.
//
// Valkey is wire-compatible with Redis. Use this backend when several server
// instances share state or codes and tokens must survive a restart.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth:"):
//
//	{prefix}client:{clientID}                  -> JSON(Client)
//	{prefix}approvals:{ownerID}                -> HASH clientID -> scope
//	{prefix}code:{code}:{sha256(redirect)[:8]} -> JSON(AuthorizationCode), TTL code lifetime + 1m
//	{prefix}access:{token}                     -> JSON(AccessToken), TTL token lifetime + 1m
//	{prefix}refresh:{token}                    -> JSON(RefreshToken), no TTL
//
// # Atomic Operations
//
// DeleteAuthorizationCode relies on DEL reporting how many keys it removed, so
// only one of several concurrent redemptions of the same code succeeds.
// UpdateApproval uses a Lua script so it never creates an approval.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "valkey.example.com:6379",
//	    Password:  os.Getenv("VALKEY_PASSWORD"),
//	    TLS:       &tls.Config{MinVersion: tls.VersionTLS12},
//	})
//
// # Client Secret Encryption
//
// Plaintext client secrets can be sealed with AES-256-GCM before they are written:
//
//	key, _ := security.GenerateKey()
//	encryptor, _ := security.NewEncryptor(key)
//	store.SetEncryptor(encryptor)
package valkey
