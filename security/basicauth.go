package security

import (
	"crypto/subtle"
	"encoding/base64"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// basicAuthPattern matches "Basic <base64>" with a case-sensitive scheme and
// optional trailing padding.
var basicAuthPattern = regexp.MustCompile(`^Basic ([A-Za-z0-9+/]+=*)$`)

// ParseBasicAuth extracts the username and password from an Authorization header
// value. The decoded payload must contain a colon that is neither its first nor
// its last character. The split happens at the first colon.
func ParseBasicAuth(header string) (username, password string, ok bool) {
	m := basicAuthPattern.FindStringSubmatch(header)
	if m == nil {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		return "", "", false
	}
	payload := string(decoded)
	i := strings.IndexByte(payload, ':')
	if i <= 0 || i == len(payload)-1 {
		return "", "", false
	}
	return payload[:i], payload[i+1:], true
}

// VerifyBasicAuth reports whether header carries exactly the expected credentials.
func VerifyBasicAuth(header, expectedUsername, expectedPassword string) bool {
	username, password, ok := ParseBasicAuth(header)
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(expectedUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(expectedPassword)) == 1
	return userOK && passOK
}

// VerifyBasicAuthHash is VerifyBasicAuth for clients whose secret is only
// available as a bcrypt hash.
func VerifyBasicAuthHash(header, expectedUsername, passwordHash string) bool {
	username, password, ok := ParseBasicAuth(header)
	if !ok {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(expectedUsername)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) == nil
}

// HashSecret returns the bcrypt hash stored in place of a plaintext client secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
