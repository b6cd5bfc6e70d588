package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Program        ProgramConfig        `yaml:"program"`
	Storage        StorageConfig        `yaml:"storage"`
	Oracle         OracleConfig         `yaml:"oracle"`
	Faucet         FaucetConfig         `yaml:"faucet"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	APIKey         APIKeyConfig         `yaml:"api_key"`
	Idempotency    IdempotencyConfig    `yaml:"idempotency"`
	Auth           AuthConfig           `yaml:"auth"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`          // Optional prefix for all routes (e.g., "/api")
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // Optional API key to protect /metrics endpoint
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development

	FilePath   string `yaml:"file_path"`    // Optional rotated log file; stdout when empty
	MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotate after this many megabytes (default: 100)
	MaxBackups int    `yaml:"max_backups"`  // Rotated files kept
	MaxAgeDays int    `yaml:"max_age_days"` // Days rotated files are kept
}

// ProgramConfig identifies the factory program that owns stablecoin records.
type ProgramConfig struct {
	ProgramID string `yaml:"program_id"` // Base58 program address used to derive record addresses
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // Maximum number of open connections (default: 25)
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // Maximum number of idle connections (default: 5)
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // Maximum lifetime of connections (default: 5m)
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Backend         string              `yaml:"backend"`          // "memory", "postgres", "mongodb", or "file"
	PostgresURL     string              `yaml:"postgres_url"`     // PostgreSQL connection string
	MongoDBURL      string              `yaml:"mongodb_url"`      // MongoDB connection string
	MongoDBDatabase string              `yaml:"mongodb_database"` // MongoDB database name
	FilePath        string              `yaml:"file_path"`        // Path to JSON file for file backend
	PostgresPool    PostgresPoolConfig  `yaml:"postgres_pool"`    // PostgreSQL connection pool settings
	SchemaMapping   SchemaMappingConfig `yaml:"schema_mapping"`   // Table/collection name mappings
}

// SchemaMappingConfig holds table/collection name mappings for custom schemas.
type SchemaMappingConfig struct {
	Stablecoins   TableMappingConfig `yaml:"stablecoins"`
	Mints         TableMappingConfig `yaml:"mints"`
	TokenAccounts TableMappingConfig `yaml:"token_accounts"`
}

// TableMappingConfig defines a single table/collection mapping.
type TableMappingConfig struct {
	TableName string `yaml:"table_name"` // Custom table/collection name
}

// OracleConfig selects where exchange-rate readings come from.
type OracleConfig struct {
	Source       string                `yaml:"source"`        // "static" or "switchboard"
	RPCURL       string                `yaml:"rpc_url"`       // Solana JSON-RPC endpoint for switchboard
	Commitment   string                `yaml:"commitment"`    // processed, confirmed, finalized
	Timeout      Duration              `yaml:"timeout"`       // Per-read RPC timeout (default: 5s)
	MaxStaleness Duration              `yaml:"max_staleness"` // Reject rounds older than this (0 = disabled)
	Feeds        map[string]StaticFeed `yaml:"feeds"`         // Feed address -> reading, only for source "static"
}

// StaticFeed is a fixed oracle reading. Rate = mantissa * 10^scale.
type StaticFeed struct {
	Mantissa string `yaml:"mantissa"` // Decimal integer, may exceed int64
	Scale    int32  `yaml:"scale"`
}

// FaucetConfig controls the test bond faucet.
type FaucetConfig struct {
	Enabled  bool   `yaml:"enabled"`  // Never enable in production
	Decimals uint8  `yaml:"decimals"` // Decimals of the faucet bond mint (default: 6)
	MaxDrip  uint64 `yaml:"max_drip"` // Maximum atomic units per request (default: 1000 whole bonds)
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// Global rate limiting (across all callers)
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`

	// Per-caller rate limiting (identified by X-Caller header or caller query param)
	PerCallerEnabled bool     `yaml:"per_caller_enabled"`
	PerCallerLimit   int      `yaml:"per_caller_limit"`
	PerCallerWindow  Duration `yaml:"per_caller_window"`

	// Per-IP rate limiting (fallback when caller not identified)
	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`
}

// APIKeyConfig holds API key tier configuration.
// Integrators and operators can bypass rate limits via the X-API-Key header.
type APIKeyConfig struct {
	Enabled bool              `yaml:"enabled"`
	Keys    map[string]string `yaml:"keys"` // Map of API key -> tier (public, integrator, operator)
}

// IdempotencyConfig controls replay of POST responses keyed by the Idempotency-Key header.
type IdempotencyConfig struct {
	Enabled    bool     `yaml:"enabled"`
	TTL        Duration `yaml:"ttl"`         // How long a stored response is replayed (default: 24h)
	MaxEntries int      `yaml:"max_entries"` // LRU bound on stored responses (default: 10000)
}

// AuthConfig controls wallet signature checks on create, mint and redeem.
type AuthConfig struct {
	RequireSignatures bool     `yaml:"require_signatures"` // Require X-Signer/X-Message/X-Signature
	MaxSkew           Duration `yaml:"max_skew"`           // Accepted signed timestamp drift (default: 5m)
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`    // Enable circuit breakers (default: true)
	OracleRPC BreakerServiceConfig `yaml:"oracle_rpc"` // Switchboard account reads
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
