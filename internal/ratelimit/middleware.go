package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/CedrosPay/stablecoin-factory/internal/apikey"
	"github.com/CedrosPay/stablecoin-factory/internal/config"
	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
)

// Limit types reported in metrics.
const (
	LimitGlobal    = "global"
	LimitPerCaller = "per_caller"
	LimitPerIP     = "per_ip"
)

// Config holds rate limiting configuration.
type Config struct {
	// Global rate limiting (across all callers)
	GlobalEnabled bool
	GlobalLimit   int           // requests per window
	GlobalWindow  time.Duration // time window

	// Per-caller rate limiting (identified by caller address)
	PerCallerEnabled bool
	PerCallerLimit   int
	PerCallerWindow  time.Duration

	// Per-IP rate limiting (fallback when caller not identified)
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default rate limits.
func DefaultConfig() Config {
	return Config{
		// Global: 1000 req/min
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  1 * time.Minute,

		// Per-caller: 60 req/min
		PerCallerEnabled: true,
		PerCallerLimit:   60,
		PerCallerWindow:  1 * time.Minute,

		// Per-IP: 120 req/min
		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  1 * time.Minute,
	}
}

// FromConfig converts application config.
func FromConfig(cfg config.RateLimitConfig, m *metrics.Metrics) Config {
	return Config{
		GlobalEnabled:    cfg.GlobalEnabled,
		GlobalLimit:      cfg.GlobalLimit,
		GlobalWindow:     cfg.GlobalWindow.Duration,
		PerCallerEnabled: cfg.PerCallerEnabled,
		PerCallerLimit:   cfg.PerCallerLimit,
		PerCallerWindow:  cfg.PerCallerWindow.Duration,
		PerIPEnabled:     cfg.PerIPEnabled,
		PerIPLimit:       cfg.PerIPLimit,
		PerIPWindow:      cfg.PerIPWindow.Duration,
		Metrics:          m,
	}
}

// createRateLimitHandler writes the 429 error envelope for limitType.
func createRateLimitHandler(limitType string, window time.Duration, metricsCollector *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	windowSeconds := int(window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	var message string
	switch limitType {
	case LimitGlobal:
		message = "Global rate limit exceeded. Please try again later."
	case LimitPerCaller:
		message = "Per-caller rate limit exceeded. Please try again later."
	case LimitPerIP:
		message = "IP rate limit exceeded. Please try again later."
	default:
		message = "Rate limit exceeded. Please try again later."
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if metricsCollector != nil {
			metricsCollector.ObserveRateLimit(limitType)
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeRateLimitExceeded, message, "retryAfterSeconds", windowSeconds)
	}
}

func passThrough(next http.Handler) http.Handler {
	return next
}

// GlobalLimiter creates a global rate limiter middleware.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return passThrough
	}

	limiter := httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(createRateLimitHandler(LimitGlobal, cfg.GlobalWindow, cfg.Metrics)),
	)

	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apikey.ShouldBypassGlobalLimit(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// CallerLimiter creates a per-caller rate limiter middleware. Requests that
// name no caller are keyed by IP.
func CallerLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerCallerEnabled {
		return passThrough
	}

	limiter := httprate.Limit(
		cfg.PerCallerLimit,
		cfg.PerCallerWindow,
		httprate.WithKeyFuncs(callerKeyExtractor),
		httprate.WithLimitHandler(createRateLimitHandler(LimitPerCaller, cfg.PerCallerWindow, cfg.Metrics)),
	)

	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apikey.IsExemptFromRateLimits(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// IPLimiter creates a per-IP rate limiter middleware (fallback).
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return passThrough
	}

	limiter := httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(createRateLimitHandler(LimitPerIP, cfg.PerIPWindow, cfg.Metrics)),
	)

	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apikey.IsExemptFromRateLimits(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// callerKeyExtractor is a httprate.KeyFunc keyed by caller address.
func callerKeyExtractor(r *http.Request) (string, error) {
	caller := extractCallerFromRequest(r)
	if caller == "" {
		return httprate.KeyByIP(r)
	}
	return "caller:" + caller, nil
}

// extractCallerFromRequest reads the caller from the X-Caller header or the
// caller query parameter. Request bodies are not parsed.
func extractCallerFromRequest(r *http.Request) string {
	if caller := strings.TrimSpace(r.Header.Get("X-Caller")); caller != "" {
		return caller
	}
	return strings.TrimSpace(r.URL.Query().Get("caller"))
}
