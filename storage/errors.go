package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every lookup miss reported by a backend.
var ErrNotFound = errors.New("not found")

// Lookup misses. Each wraps ErrNotFound.
var (
	ErrClientNotFound            = fmt.Errorf("client %w", ErrNotFound)
	ErrApprovalNotFound          = fmt.Errorf("approval %w", ErrNotFound)
	ErrAuthorizationCodeNotFound = fmt.Errorf("authorization code %w", ErrNotFound)
	ErrAccessTokenNotFound       = fmt.Errorf("access token %w", ErrNotFound) //nolint:gosec // error message, not a credential
	ErrRefreshTokenNotFound      = fmt.Errorf("refresh token %w", ErrNotFound) //nolint:gosec // error message, not a credential
)

// ErrApprovalExists is returned by AddApproval when an approval is already stored.
var ErrApprovalExists = errors.New("approval already exists")

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
