package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use the FACTORY_ prefix.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "FACTORY_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "FACTORY_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "FACTORY_ADMIN_METRICS_API_KEY")
	if v := os.Getenv("FACTORY_CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = splitList(v)
	}

	// Normalize route prefix: ensure it starts with / and doesn't end with /
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "FACTORY_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "FACTORY_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "FACTORY_ENVIRONMENT")
	setIfEnv(&c.Logging.FilePath, "FACTORY_LOG_FILE")

	// Program config
	setIfEnv(&c.Program.ProgramID, "FACTORY_PROGRAM_ID")

	// Storage config
	setIfEnv(&c.Storage.Backend, "FACTORY_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "FACTORY_POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "FACTORY_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "FACTORY_MONGODB_DATABASE")
	setIfEnv(&c.Storage.FilePath, "FACTORY_STORAGE_FILE_PATH")

	// Oracle config
	setIfEnv(&c.Oracle.Source, "FACTORY_ORACLE_SOURCE")
	setIfEnv(&c.Oracle.RPCURL, "FACTORY_ORACLE_RPC_URL")
	setIfEnv(&c.Oracle.Commitment, "FACTORY_ORACLE_COMMITMENT")
	setDurationIfEnv(&c.Oracle.Timeout, "FACTORY_ORACLE_TIMEOUT")
	setDurationIfEnv(&c.Oracle.MaxStaleness, "FACTORY_ORACLE_MAX_STALENESS")

	// Faucet config
	setBoolIfEnv(&c.Faucet.Enabled, "FACTORY_FAUCET_ENABLED")
	setUintIfEnv(&c.Faucet.MaxDrip, "FACTORY_FAUCET_MAX_DRIP")

	// Idempotency config
	setBoolIfEnv(&c.Idempotency.Enabled, "FACTORY_IDEMPOTENCY_ENABLED")
	setDurationIfEnv(&c.Idempotency.TTL, "FACTORY_IDEMPOTENCY_TTL")

	// Auth config
	setBoolIfEnv(&c.Auth.RequireSignatures, "FACTORY_AUTH_REQUIRE_SIGNATURES")
	setDurationIfEnv(&c.Auth.MaxSkew, "FACTORY_AUTH_MAX_SKEW")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "FACTORY_CIRCUIT_BREAKER_ENABLED")

	// API Key config
	setBoolIfEnv(&c.APIKey.Enabled, "FACTORY_API_KEY_ENABLED")
	// Load API keys (FACTORY_API_KEY_<KEY>=<tier>)
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "FACTORY_API_KEY_") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimPrefix(parts[0], "FACTORY_API_KEY_")
		if name == "" || name == "ENABLED" {
			continue
		}
		if c.APIKey.Keys == nil {
			c.APIKey.Keys = make(map[string]string)
		}
		// FACTORY_API_KEY_OPS_ABC123=operator -> key: "ops_abc123", tier: "operator"
		c.APIKey.Keys[strings.ToLower(name)] = strings.TrimSpace(parts[1])
	}
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// setUintIfEnv sets a uint64 pointer from a base-10 environment variable.
func setUintIfEnv(target *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			*target = n
		}
	}
}

// splitList splits a comma separated list and drops empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
// Examples: "api" -> "/api", "/api/" -> "/api", "factory" -> "/factory"
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix
}
