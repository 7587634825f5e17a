package server

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/giantswarm/oauth-server/scope"
)

const (
	// DefaultAdminScope is the scope token reserved for administrator resource owners
	DefaultAdminScope = "oauth_admin"

	// DefaultAccessTokenTTL is the lifetime of an access token in seconds
	DefaultAccessTokenTTL = 3600

	// DefaultAuthorizationCodeTTL is the lifetime of an authorization code in seconds
	DefaultAuthorizationCodeTTL = 600
)

// Config holds authorization server configuration.
// It is read-only once passed to New.
type Config struct {
	// AllowUnregisteredClients lets clients without a registration authorize
	// when their redirect URI host equals the client_id.
	// WARNING: such clients are always user-agent-based and unauthenticated
	// Default: false
	AllowUnregisteredClients bool

	// AllowAllScopes skips the SupportedScopes check
	// Default: false
	AllowAllScopes bool

	// SupportedScopes lists the scope tokens clients may request.
	// Ignored when AllowAllScopes is set.
	SupportedScopes []string

	// AdminResourceOwnerIDs lists the resource owners that may be granted AdminScope
	AdminResourceOwnerIDs []string

	// AdminScope is the scope token restricted to administrators
	// Default: "oauth_admin"
	AdminScope string

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// AuthorizationCodeTTL is how long authorization codes can be redeemed
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)
}

// applyDefaults fills in zero values and logs warnings for risky settings
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config.AdminScope == "" {
		config.AdminScope = DefaultAdminScope
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}

	logConfigWarnings(config, logger)
	return config
}

// logConfigWarnings logs warnings for insecure or surprising configuration
func logConfigWarnings(config *Config, logger *slog.Logger) {
	if config.AllowUnregisteredClients {
		logger.Warn("⚠️  SECURITY NOTICE: Unregistered clients are ALLOWED",
			"risk", "Any host can obtain implicit grants from consenting resource owners",
			"recommendation", "Register clients explicitly and set AllowUnregisteredClients=false")
	}
	if config.AllowAllScopes {
		logger.Warn("⚠️  SECURITY NOTICE: All scopes are ALLOWED",
			"recommendation", "Configure SupportedScopes")
	}
	if !config.AllowAllScopes && len(config.SupportedScopes) == 0 {
		logger.Warn("⚠️  CONFIGURATION WARNING: SupportedScopes is empty",
			"risk", "Every authorization request will fail with invalid_scope",
			"recommendation", "Configure SupportedScopes or enable AllowAllScopes")
	}
	if len(config.AdminResourceOwnerIDs) == 0 {
		logger.Info("No administrator resource owners configured; admin scope cannot be granted",
			"admin_scope", config.AdminScope)
	}
}

// supportedScope returns the canonical form of SupportedScopes, or "" when
// none are configured.
func (c *Config) supportedScope() (string, error) {
	if len(c.SupportedScopes) == 0 {
		return "", nil
	}
	s, err := scope.Normalize(strings.Join(c.SupportedScopes, " "))
	if err != nil {
		return "", fmt.Errorf("invalid supported scopes %q: %w", c.SupportedScopes, err)
	}
	return s, nil
}

// isAdmin reports whether the resource owner may be granted AdminScope
func (c *Config) isAdmin(resourceOwnerID string) bool {
	return resourceOwnerID != "" && slices.Contains(c.AdminResourceOwnerIDs, resourceOwnerID)
}
