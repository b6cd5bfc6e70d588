package apikey

import (
	"context"
	"net/http"
	"strings"

	"github.com/CedrosPay/stablecoin-factory/internal/config"
)

// Tier represents the API key tier level.
type Tier string

const (
	TierPublic     Tier = "public"     // Default tier with standard rate limits
	TierIntegrator Tier = "integrator" // Wallets and frontends, exempt from per-caller and per-IP limits
	TierOperator   Tier = "operator"   // Deployment operators, exempt from every limit
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// contextKeyTier stores the API key tier in request context.
	contextKeyTier contextKey = "api_key_tier"
)

// Config holds API key configuration.
type Config struct {
	// APIKeys maps API key to tier level.
	APIKeys map[string]Tier

	// Enabled controls whether API key authentication is active.
	Enabled bool
}

// FromConfig converts application config. Unknown tiers are dropped; they are
// rejected earlier by config validation.
func FromConfig(cfg config.APIKeyConfig) Config {
	keys := make(map[string]Tier, len(cfg.Keys))
	for key, tier := range cfg.Keys {
		switch t := Tier(strings.ToLower(tier)); t {
		case TierPublic, TierIntegrator, TierOperator:
			keys[key] = t
		}
	}
	return Config{APIKeys: keys, Enabled: cfg.Enabled}
}

// Middleware validates API keys and stores tier information in request context.
// Missing or unknown keys proceed as TierPublic.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled || len(cfg.APIKeys) == 0 {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := context.WithValue(r.Context(), contextKeyTier, TierPublic)
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := TierPublic

			if apiKey := strings.TrimSpace(r.Header.Get("X-API-Key")); apiKey != "" {
				if keyTier, ok := cfg.APIKeys[apiKey]; ok {
					tier = keyTier
				}
			}

			ctx := context.WithValue(r.Context(), contextKeyTier, tier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTier extracts the API key tier from request context.
func GetTier(r *http.Request) Tier {
	if tier, ok := r.Context().Value(contextKeyTier).(Tier); ok {
		return tier
	}
	return TierPublic
}

// IsExemptFromRateLimits reports whether per-caller and per-IP limits are skipped.
func IsExemptFromRateLimits(r *http.Request) bool {
	tier := GetTier(r)
	return tier == TierIntegrator || tier == TierOperator
}

// ShouldBypassGlobalLimit reports whether the global limit is skipped.
func ShouldBypassGlobalLimit(r *http.Request) bool {
	return GetTier(r) == TierOperator
}
