package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"

	IdempotencyMemory   = "memory"
	IdempotencyRedis    = "redis"
	IdempotencyPostgres = "postgres"

	PolicyEngineHEL = "hel"
	PolicyEngineOPA = "opa"

	CanonicalJCS    = "jcs"
	CanonicalSorted = "sorted"

	EnvProduction = "production"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Env     string `env:"SP_ENV" envDefault:"development"`
	Storage string `env:"SP_STORAGE" envDefault:"file"`

	ReceiptsPath    string `env:"SP_RECEIPTS_PATH" envDefault:"data/receipts.jsonl"`
	LedgerPath      string `env:"SP_LEDGER_PATH" envDefault:"data/ledger.jsonl"`
	IdempotencyPath string `env:"SP_IDEMPOTENCY_PATH" envDefault:"data/idempotency.jsonl"`

	IdempotencyBackend    string `env:"SP_IDEMPOTENCY_BACKEND" envDefault:"memory"`
	IdempotencyMaxKeys    int    `env:"SP_IDEMPOTENCY_MAX_KEYS" envDefault:"0"`
	IdempotencyTTLSeconds int    `env:"SP_IDEMPOTENCY_TTL_SECONDS" envDefault:"0"`

	CanonicalMode        string `env:"SP_CANONICAL_MODE" envDefault:"jcs"`
	MaxExchangeBodyBytes int64  `env:"SP_MAX_EXCHANGE_BODY_BYTES" envDefault:"1048576"`

	HELAllowlist   HostAllowlist `env:"SP_HEL_ALLOWLIST" envDefault:"localhost,127.0.0.1"`
	PolicyEngine   string        `env:"SP_POLICY_ENGINE" envDefault:"hel"`
	PolicyRegoPath string        `env:"SP_POLICY_REGO_PATH"`

	PrivateKeyB64       string `env:"SP_PRIVATE_KEY_B64"`
	KID                 string `env:"SP_KID" envDefault:"local-dev-kid-1"`
	JWKSCacheTTLSeconds int    `env:"SP_JWKS_CACHE_TTL" envDefault:"3600"`
	AllowEphemeralKey   bool   `env:"SP_ALLOW_EPHEMERAL_KEY" envDefault:"false"`

	// When VAULT_ADDR is set and SP_PRIVATE_KEY_B64 is not, the key is read from
	// secret/data/signet/{SP_ENV}/keys/{SP_KID}.
	VaultAddr  string `env:"VAULT_ADDR"`
	VaultToken string `env:"VAULT_TOKEN"`

	ForwardEnabled        bool `env:"SP_FORWARD_ENABLED" envDefault:"false"`
	ForwardTimeoutSeconds int  `env:"SP_FORWARD_TIMEOUT_SECONDS" envDefault:"10"`

	RateLimitRequests      int  `env:"RATE_LIMIT_REQUESTS" envDefault:"0"`
	RateLimitWindowSeconds int  `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	RateLimitFailClosed    bool `env:"RATE_LIMIT_FAIL_CLOSED" envDefault:"false"`
	RateLimitMaxKeys       int  `env:"RATE_LIMIT_MAX_KEYS" envDefault:"10000"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// FromEnv reads the process environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromMap reads configuration from an explicit variable set instead of the process environment.
func FromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case StorageFile, StoragePostgres:
	default:
		return fmt.Errorf("unsupported SP_STORAGE %q", c.Storage)
	}
	switch c.IdempotencyBackend {
	case IdempotencyMemory, IdempotencyRedis, IdempotencyPostgres:
	default:
		return fmt.Errorf("unsupported SP_IDEMPOTENCY_BACKEND %q", c.IdempotencyBackend)
	}
	switch c.PolicyEngine {
	case PolicyEngineHEL, PolicyEngineOPA:
	default:
		return fmt.Errorf("unsupported SP_POLICY_ENGINE %q", c.PolicyEngine)
	}
	switch c.CanonicalMode {
	case CanonicalJCS, CanonicalSorted:
	default:
		return fmt.Errorf("unsupported SP_CANONICAL_MODE %q", c.CanonicalMode)
	}
	if c.Storage == StoragePostgres && c.PostgresDSN == "" {
		return fmt.Errorf("SP_STORAGE=postgres requires POSTGRES_DSN")
	}
	if c.IdempotencyBackend == IdempotencyPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("SP_IDEMPOTENCY_BACKEND=postgres requires POSTGRES_DSN")
	}
	if c.IdempotencyBackend == IdempotencyRedis && c.RedisAddr == "" {
		return fmt.Errorf("SP_IDEMPOTENCY_BACKEND=redis requires REDIS_ADDR")
	}
	if c.MaxExchangeBodyBytes <= 0 {
		return fmt.Errorf("SP_MAX_EXCHANGE_BODY_BYTES must be positive")
	}
	if c.VaultAddr != "" && c.VaultToken == "" {
		return fmt.Errorf("VAULT_ADDR requires VAULT_TOKEN")
	}
	if strings.TrimSpace(c.KID) == "" {
		return fmt.Errorf("SP_KID must not be empty")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// EphemeralKeyAllowed reports whether a throwaway signing key may be generated when
// SP_PRIVATE_KEY_B64 is unset.
func (c Config) EphemeralKeyAllowed() bool {
	return !c.IsProduction() || c.AllowEphemeralKey
}

func (c Config) KeyFromVault() bool {
	return c.PrivateKeyB64 == "" && c.VaultAddr != ""
}

func (c Config) JWKSCacheTTL() time.Duration {
	if c.JWKSCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.JWKSCacheTTLSeconds) * time.Second
}

// QuotaPolicy is disabled unless RATE_LIMIT_REQUESTS is positive.
func (c Config) QuotaPolicy() domain.QuotaPolicy {
	window := time.Minute
	if c.RateLimitWindowSeconds > 0 {
		window = time.Duration(c.RateLimitWindowSeconds) * time.Second
	}
	return domain.QuotaPolicy{Requests: c.RateLimitRequests, Window: window}
}

func (c Config) ForwardTimeout() time.Duration {
	if c.ForwardTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ForwardTimeoutSeconds) * time.Second
}

func (c Config) IdempotencyTTL() time.Duration {
	if c.IdempotencyTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}
