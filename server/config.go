package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/taskwarden/taskwarden/auth"
	"github.com/taskwarden/taskwarden/security"
)

// Config holds service configuration
type Config struct {
	// SigningKey is the HMAC secret used to sign session tokens.
	// The service refuses to start without one.
	SigningKey string

	// TokenTTL is the session token lifetime
	TokenTTL time.Duration

	// BcryptCost is the bcrypt work factor for password hashing
	BcryptCost int

	// LoginRateLimit is the per-IP requests/second allowed on the
	// authentication endpoints; zero disables rate limiting
	LoginRateLimit int

	// LoginRateBurst is the per-IP burst allowance on the authentication
	// endpoints
	LoginRateBurst int

	// TrustProxyHeaders enables X-Forwarded-For parsing for client IP
	// extraction; only enable behind a trusted reverse proxy
	TrustProxyHeaders bool

	// TrustedProxyCount is the number of trusted proxies in front of the
	// service, used to pick the right X-Forwarded-For entry
	TrustedProxyCount int

	// EnableAuditLogging enables structured security audit events
	EnableAuditLogging bool

	// AuditBufferSize is the audit event channel capacity
	AuditBufferSize int

	// SlowRequestThreshold is the latency above which a request is logged
	// at warning level
	SlowRequestThreshold time.Duration

	// Logger for structured logging (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// applySecureDefaults fills unset fields with safe values
func (c *Config) applySecureDefaults() {
	if c.TokenTTL <= 0 {
		c.TokenTTL = auth.DefaultTokenTTL
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = auth.DefaultBcryptCost
	}
	if c.LoginRateBurst <= 0 && c.LoginRateLimit > 0 {
		c.LoginRateBurst = 5
	}
	if c.AuditBufferSize <= 0 {
		c.AuditBufferSize = security.DefaultAuditBuffer
	}
	if c.SlowRequestThreshold <= 0 {
		c.SlowRequestThreshold = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks the configuration for fatal misconfiguration
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		return fmt.Errorf("signing key is required: set TASKWARDEN_SIGNING_KEY")
	}
	if len(c.SigningKey) < 32 {
		return fmt.Errorf("signing key must be at least 32 bytes, got %d", len(c.SigningKey))
	}
	if c.TrustedProxyCount < 0 {
		return fmt.Errorf("trusted proxy count must be non-negative, got %d", c.TrustedProxyCount)
	}
	return nil
}
