package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/stablecoin-factory/internal/apikey"
	"github.com/CedrosPay/stablecoin-factory/internal/auth"
	"github.com/CedrosPay/stablecoin-factory/internal/circuitbreaker"
	"github.com/CedrosPay/stablecoin-factory/internal/config"
	"github.com/CedrosPay/stablecoin-factory/internal/idempotency"
	"github.com/CedrosPay/stablecoin-factory/internal/issuance"
	"github.com/CedrosPay/stablecoin-factory/internal/logger"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
	"github.com/CedrosPay/stablecoin-factory/internal/ratelimit"
)

var (
	serverStartTime = time.Now()
)

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

// Dependencies are the services exposed over HTTP.
type Dependencies struct {
	Issuance    *issuance.Service
	Faucet      *issuance.Faucet        // Optional; nil behaves as a disabled faucet
	Breakers    *circuitbreaker.Manager // Optional; reported by the health endpoint
	Idempotency idempotency.Store       // Optional; nil disables Idempotency-Key replay
	Metrics     *metrics.Metrics        // Optional rate limit instrumentation
	Gatherer    prometheus.Gatherer     // Registry served at /metrics (default: global)
	Logger      zerolog.Logger
}

type handlers struct {
	cfg        *config.Config
	issuance   *issuance.Service
	faucet     *issuance.Faucet
	breakers   *circuitbreaker.Manager
	signatures *auth.Verifier // nil unless auth.require_signatures is set
	logger     zerolog.Logger
}

// New builds the HTTP server with configured router.
func New(cfg *config.Config, deps Dependencies) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: newHandlers(cfg, deps),
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	ConfigureRouter(router, cfg, deps)

	return s
}

func newHandlers(cfg *config.Config, deps Dependencies) handlers {
	h := handlers{
		cfg:      cfg,
		issuance: deps.Issuance,
		faucet:   deps.Faucet,
		breakers: deps.Breakers,
		logger:   deps.Logger,
	}
	if cfg.Auth.RequireSignatures {
		h.signatures = auth.NewVerifier(cfg.Auth.MaxSkew.Duration)
	}
	return h
}

// ConfigureRouter attaches factory routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, deps Dependencies) {
	if router == nil {
		return
	}

	handler := newHandlers(cfg, deps)

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		allowedHeaders := []string{
			"Accept", "Content-Type", "X-API-Key", "X-Caller", "X-Request-ID",
			idempotency.HeaderKey, auth.HeaderSigner, auth.HeaderMessage, auth.HeaderSignature,
		}
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   allowedHeaders,
			ExposedHeaders:   []string{"Retry-After", "X-Request-ID", idempotency.HeaderReplayed},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)

	// Logging goes before RequestID so the request logger is in context first.
	router.Use(logger.Middleware(deps.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	// API keys are resolved before rate limiting so tiers can bypass limits.
	router.Use(apikey.Middleware(apikey.FromConfig(cfg.APIKey)))

	rateLimitCfg := ratelimit.FromConfig(cfg.RateLimit, deps.Metrics)
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.CallerLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	prefix := cfg.Server.RoutePrefix

	metricsHandler := promhttp.Handler()
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}

	// Lightweight endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/healthz", handler.health)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle(prefix+"/metrics", metricsHandler)
	})

	// Endpoints that read the oracle or run a ledger transaction
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		// State-changing POSTs replay their first 2xx response per Idempotency-Key.
		post := r
		if deps.Idempotency != nil {
			post = r.With(idempotency.Middleware(deps.Idempotency, deps.Metrics))
		}

		post.Post(prefix+"/v1/stablecoins", handler.createStablecoin)
		r.Get(prefix+"/v1/stablecoins", handler.listStablecoins)
		r.Get(prefix+"/v1/stablecoins/{address}", handler.getStablecoin)
		post.Post(prefix+"/v1/stablecoins/{address}/mint", handler.mintStablecoin)
		post.Post(prefix+"/v1/stablecoins/{address}/redeem", handler.redeemStablecoin)
		r.Get(prefix+"/v1/stablecoins/{address}/quote", handler.quoteStablecoin)

		r.Get(prefix+"/v1/balances/{owner}", handler.getBalance)
		post.Post(prefix+"/v1/faucet/bonds", handler.dripBonds)

		r.Get(prefix+"/v1/oracle/{feed}", handler.getOracleReading)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
