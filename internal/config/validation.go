package config

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// tableNamePattern limits schema mapping names to plain SQL identifiers.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Logging.FilePath != "" && c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Oracle.Source == "" {
		c.Oracle.Source = "static"
	}
	if c.Oracle.Timeout.Duration <= 0 {
		c.Oracle.Timeout = Duration{Duration: 5 * time.Second}
	}
	if c.Oracle.Feeds == nil {
		c.Oracle.Feeds = map[string]StaticFeed{}
	}
	switch strings.ToLower(c.Oracle.Commitment) {
	case "processed", "confirmed", "finalized":
		c.Oracle.Commitment = strings.ToLower(c.Oracle.Commitment)
	case "finalised":
		c.Oracle.Commitment = string(rpc.CommitmentFinalized)
	default:
		c.Oracle.Commitment = string(rpc.CommitmentConfirmed)
	}
	if c.APIKey.Keys == nil {
		c.APIKey.Keys = make(map[string]string)
	}
	if c.Idempotency.TTL.Duration <= 0 {
		c.Idempotency.TTL = Duration{Duration: 24 * time.Hour}
	}
	if c.Auth.MaxSkew.Duration <= 0 {
		c.Auth.MaxSkew = Duration{Duration: 5 * time.Minute}
	}
	if c.Idempotency.MaxEntries <= 0 {
		c.Idempotency.MaxEntries = 10000
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	// Program validation
	if c.Program.ProgramID == "" {
		errs = append(errs, "program.program_id is required")
	} else if _, err := solana.PublicKeyFromBase58(c.Program.ProgramID); err != nil {
		errs = append(errs, fmt.Sprintf("program.program_id is not a valid public key: %v", err))
	}

	// Storage validation
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.FilePath == "" {
			errs = append(errs, "storage.file_path is required when backend is 'file'")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			errs = append(errs, "storage.postgres_url is required when backend is 'postgres'")
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			errs = append(errs, "storage.mongodb_url is required when backend is 'mongodb'")
		}
		if c.Storage.MongoDBDatabase == "" {
			errs = append(errs, "storage.mongodb_database is required when backend is 'mongodb'")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q must be one of memory, file, postgres, mongodb", c.Storage.Backend))
	}
	for name, mapping := range map[string]TableMappingConfig{
		"stablecoins":    c.Storage.SchemaMapping.Stablecoins,
		"mints":          c.Storage.SchemaMapping.Mints,
		"token_accounts": c.Storage.SchemaMapping.TokenAccounts,
	} {
		if mapping.TableName != "" && !tableNamePattern.MatchString(mapping.TableName) {
			errs = append(errs, fmt.Sprintf("storage.schema_mapping.%s.table_name %q is not a valid identifier", name, mapping.TableName))
		}
	}

	// Oracle validation
	switch c.Oracle.Source {
	case "static":
		for feed, reading := range c.Oracle.Feeds {
			errs = append(errs, validateStaticFeed(feed, reading)...)
		}
	case "switchboard":
		if c.Oracle.RPCURL == "" {
			errs = append(errs, "oracle.rpc_url is required when source is 'switchboard'")
		} else if err := validateHTTPURL(c.Oracle.RPCURL); err != nil {
			errs = append(errs, fmt.Sprintf("oracle.rpc_url: %v", err))
		}
	default:
		errs = append(errs, fmt.Sprintf("oracle.source %q must be 'static' or 'switchboard'", c.Oracle.Source))
	}
	if c.Oracle.MaxStaleness.Duration < 0 {
		errs = append(errs, "oracle.max_staleness must not be negative")
	}

	// Faucet validation
	if c.Faucet.Enabled {
		if c.Faucet.Decimals > 9 {
			errs = append(errs, "faucet.decimals must be at most 9")
		}
		if c.Faucet.MaxDrip == 0 {
			errs = append(errs, "faucet.max_drip must be positive when the faucet is enabled")
		}
	}

	// Rate limit validation
	if c.RateLimit.GlobalEnabled && (c.RateLimit.GlobalLimit <= 0 || c.RateLimit.GlobalWindow.Duration <= 0) {
		errs = append(errs, "rate_limit.global_limit and global_window must be positive when enabled")
	}
	if c.RateLimit.PerCallerEnabled && (c.RateLimit.PerCallerLimit <= 0 || c.RateLimit.PerCallerWindow.Duration <= 0) {
		errs = append(errs, "rate_limit.per_caller_limit and per_caller_window must be positive when enabled")
	}
	if c.RateLimit.PerIPEnabled && (c.RateLimit.PerIPLimit <= 0 || c.RateLimit.PerIPWindow.Duration <= 0) {
		errs = append(errs, "rate_limit.per_ip_limit and per_ip_window must be positive when enabled")
	}

	// API key validation
	for key, tier := range c.APIKey.Keys {
		switch tier {
		case "public", "integrator", "operator":
		default:
			errs = append(errs, fmt.Sprintf("api_key.keys[%s] has unknown tier %q", key, tier))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateStaticFeed(feed string, reading StaticFeed) []string {
	var errs []string
	if _, err := solana.PublicKeyFromBase58(feed); err != nil {
		errs = append(errs, fmt.Sprintf("oracle.feeds key %q is not a valid public key", feed))
	}
	mantissa, ok := new(big.Int).SetString(strings.TrimSpace(reading.Mantissa), 10)
	if !ok {
		errs = append(errs, fmt.Sprintf("oracle.feeds[%s].mantissa %q is not an integer", feed, reading.Mantissa))
	} else if mantissa.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("oracle.feeds[%s].mantissa must be positive", feed))
	} else if mantissa.BitLen() > 127 {
		errs = append(errs, fmt.Sprintf("oracle.feeds[%s].mantissa exceeds the signed 128-bit range", feed))
	}
	if reading.Scale < 0 {
		errs = append(errs, fmt.Sprintf("oracle.feeds[%s].scale must not be negative", feed))
	}
	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https":
	case "":
		return errors.New("url missing scheme")
	default:
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url missing host")
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25 // default
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5 // default
	}

	// Validate: maxIdle cannot exceed maxOpen
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute // default
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
