package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy of every issued credential (128 bits)
const tokenBytes = 16

// GenerateToken returns a new opaque credential: 16 bytes from crypto/rand
// encoded as 32 lowercase hex characters. It is used for authorization codes,
// access tokens and refresh tokens.
//
// The function panics if the system's random number generator fails. A weak
// credential must never be issued, so the failure is not retried.
func GenerateToken() string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return hex.EncodeToString(b)
}
