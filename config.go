package taskwarden

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/taskwarden/taskwarden/server"
)

// EnvConfig is the process configuration read from the environment.
type EnvConfig struct {
	Addr       string `env:"TASKWARDEN_ADDR"        envDefault:":8080"`
	DBPath     string `env:"TASKWARDEN_DB_PATH"     envDefault:"taskwarden.db"`
	SigningKey string `env:"TASKWARDEN_SIGNING_KEY"`

	TokenTTL   time.Duration `env:"TASKWARDEN_TOKEN_TTL"   envDefault:"30m"`
	BcryptCost int           `env:"TASKWARDEN_BCRYPT_COST" envDefault:"0"`

	LoginRateLimit int `env:"TASKWARDEN_LOGIN_RATE_LIMIT" envDefault:"10"`
	LoginRateBurst int `env:"TASKWARDEN_LOGIN_RATE_BURST" envDefault:"5"`

	TrustProxyHeaders bool `env:"TASKWARDEN_TRUST_PROXY"         envDefault:"false"`
	TrustedProxyCount int  `env:"TASKWARDEN_TRUSTED_PROXY_COUNT" envDefault:"1"`

	EnableAuditLogging bool `env:"TASKWARDEN_AUDIT_LOGGING" envDefault:"true"`

	LogLevel  string `env:"TASKWARDEN_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"TASKWARDEN_LOG_FORMAT" envDefault:"json"`
}

// LoadEnvConfig reads configuration from the environment.
func LoadEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// ServerConfig maps the environment configuration onto the service
// configuration.
func (c *EnvConfig) ServerConfig() server.Config {
	return server.Config{
		SigningKey:         c.SigningKey,
		TokenTTL:           c.TokenTTL,
		BcryptCost:         c.BcryptCost,
		LoginRateLimit:     c.LoginRateLimit,
		LoginRateBurst:     c.LoginRateBurst,
		TrustProxyHeaders:  c.TrustProxyHeaders,
		TrustedProxyCount:  c.TrustedProxyCount,
		EnableAuditLogging: c.EnableAuditLogging,
	}
}
