package oauth

import (
	"log/slog"

	"github.com/giantswarm/oauth-server/instrumentation"
)

// Default values for the HTTP transport
const (
	DefaultRateLimit           = 10
	DefaultRateLimitBurst      = 20
	DefaultMaxRequestBodyBytes = 64 << 10
	DefaultTrustedProxyCount   = 1
	DefaultServerName          = "OAuth Server"
)

// Config holds the HTTP handler configuration
// Structured using composition in the same way as the server configuration
type Config struct {
	// ServerName is shown on the approval and error pages
	ServerName string

	// RateLimit configures per-IP rate limiting
	RateLimit RateLimitConfig

	// Security holds transport security settings (secure by default)
	Security SecurityConfig

	// MaxRequestBodyBytes bounds form and JSON bodies
	// Default: 64 KiB
	MaxRequestBodyBytes int64

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Instrumentation enables HTTP metrics and spans (optional)
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero uses the default,
	// a negative value disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per IP.
	Burst int
}

// SecurityConfig holds transport security settings
type SecurityConfig struct {
	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of this server
	// Default: 1
	TrustedProxyCount int

	// HTTPS enables Strict-Transport-Security on every response
	HTTPS bool
}

// applyDefaults fills zero values in place
func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ServerName == "" {
		c.ServerName = DefaultServerName
	}
	if c.MaxRequestBodyBytes <= 0 {
		c.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = DefaultRateLimit
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = DefaultRateLimitBurst
	}
	if c.Security.TrustedProxyCount <= 0 {
		c.Security.TrustedProxyCount = DefaultTrustedProxyCount
	}

	if c.Security.TrustProxy {
		c.Logger.Warn("⚠️  SECURITY NOTICE: Proxy headers are trusted for client IPs",
			"trusted_proxy_count", c.Security.TrustedProxyCount,
			"recommendation", "Only enable behind a reverse proxy that overwrites X-Forwarded-For")
	}
	if c.RateLimit.Rate < 0 {
		c.Logger.Warn("⚠️  SECURITY NOTICE: Rate limiting is DISABLED")
	}
}
