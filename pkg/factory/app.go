// Package factory wires the stablecoin factory for standalone serving or for
// embedding its routes into another chi router.
package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/stablecoin-factory/internal/circuitbreaker"
	"github.com/CedrosPay/stablecoin-factory/internal/config"
	"github.com/CedrosPay/stablecoin-factory/internal/dbpool"
	"github.com/CedrosPay/stablecoin-factory/internal/httpserver"
	"github.com/CedrosPay/stablecoin-factory/internal/idempotency"
	"github.com/CedrosPay/stablecoin-factory/internal/issuance"
	"github.com/CedrosPay/stablecoin-factory/internal/lifecycle"
	"github.com/CedrosPay/stablecoin-factory/internal/logger"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
	"github.com/CedrosPay/stablecoin-factory/internal/oracle"
	"github.com/CedrosPay/stablecoin-factory/internal/storage"
)

// ServiceName is reported in every log line.
const ServiceName = "stablecoin-factory"

// App holds the assembled factory services.
type App struct {
	Config   *config.Config
	Store    storage.Store
	Feed     oracle.Feed
	Breakers *circuitbreaker.Manager
	Issuance *issuance.Service
	Faucet   *issuance.Faucet
	Logger   zerolog.Logger

	// Idempotency is nil when Idempotency-Key replay is disabled.
	Idempotency *idempotency.MemoryStore

	registry         *prometheus.Registry
	metricsCollector *metrics.Metrics
	resourceManager  *lifecycle.Manager

	routerOnce sync.Once
	router     chi.Router
}

// Option configures App construction.
type Option func(*options)

type options struct {
	store    storage.Store
	feed     oracle.Feed
	router   chi.Router
	registry *prometheus.Registry
	logger   *zerolog.Logger
	version  string
}

// WithStore sets a custom storage backend. The caller keeps ownership.
func WithStore(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithFeed replaces the configured oracle feed.
func WithFeed(feed oracle.Feed) Option {
	return func(o *options) {
		o.feed = feed
	}
}

// WithRouter registers factory routes onto an existing router.
func WithRouter(router chi.Router) Option {
	return func(o *options) {
		o.router = router
	}
}

// WithRegistry sets the Prometheus registry metrics are registered on.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithLogger replaces the logger built from config.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &log
	}
}

// WithVersion sets the version field of the default logger.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// NewApp assembles the factory: metrics, breakers, oracle, storage, issuance
// and faucet, in dependency order. On error every resource opened so far is
// closed.
func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (app *App, err error) {
	if cfg == nil {
		return nil, errors.New("factory: config required")
	}

	optState := options{version: "dev"}
	for _, opt := range opts {
		opt(&optState)
	}

	programID, err := solana.PublicKeyFromBase58(cfg.Program.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("factory: program id: %w", err)
	}

	var logFile io.Closer
	appLogger := zerolog.Nop()
	if optState.logger != nil {
		appLogger = *optState.logger
	} else {
		logCfg := logger.Config{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			Service:     ServiceName,
			Version:     optState.version,
			Environment: cfg.Logging.Environment,
		}
		if cfg.Logging.FilePath != "" {
			file := logger.RotatingFile(logger.FileConfig{
				Path:       cfg.Logging.FilePath,
				MaxSizeMB:  cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
				MaxAgeDays: cfg.Logging.MaxAgeDays,
			})
			logCfg.Output = file
			logFile = file
		}
		appLogger = logger.New(logCfg)
	}
	ctx = logger.WithContext(ctx, appLogger)

	registry := optState.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	app = &App{
		Config:           cfg,
		Logger:           appLogger,
		registry:         registry,
		metricsCollector: metrics.New(registry),
		resourceManager:  lifecycle.NewManager(appLogger),
	}
	// Registered first so it closes last and captures every shutdown line.
	app.resourceManager.Register("log-file", logFile)
	defer func() {
		if err != nil {
			_ = app.resourceManager.Close()
		}
	}()

	app.Breakers = circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker, appLogger)

	if optState.feed != nil {
		app.Feed = optState.feed
	} else {
		app.Feed, err = oracle.NewFromConfig(cfg.Oracle, app.Breakers, app.metricsCollector, appLogger)
		if err != nil {
			return nil, err
		}
	}

	backend := cfg.Storage.Backend
	if optState.store != nil {
		app.Store = optState.store
	} else {
		app.Store, err = app.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	app.Store = storage.Instrument(app.Store, backend, app.metricsCollector)

	app.Issuance = issuance.NewService(programID, app.Store, app.Feed, app.metricsCollector)
	app.Faucet, err = issuance.NewFaucet(ctx, programID, app.Store, cfg.Faucet, app.metricsCollector)
	if err != nil {
		return nil, err
	}

	if cfg.Idempotency.Enabled {
		app.Idempotency = idempotency.NewMemoryStore(cfg.Idempotency.MaxEntries, cfg.Idempotency.TTL.Duration)
		app.resourceManager.Register("idempotency", app.Idempotency)
	}

	if optState.router != nil {
		app.routerOnce.Do(func() {
			app.router = optState.router
			httpserver.ConfigureRouter(app.router, cfg, app.Dependencies())
		})
	}

	appLogger.Info().
		Str("program_id", programID.String()).
		Str("storage_backend", backend).
		Str("oracle_source", cfg.Oracle.Source).
		Bool("faucet_enabled", app.Faucet.Enabled()).
		Bool("idempotency_enabled", app.Idempotency != nil).
		Msg("factory.initialized")

	return app, nil
}

// openStore builds the configured backend. Postgres stores share one pool
// owned by the app.
func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	cfg := a.Config.Storage
	storeCfg := storage.StoreConfig{
		Backend:                cfg.Backend,
		PostgresURL:            cfg.PostgresURL,
		PostgresPool:           cfg.PostgresPool,
		MongoDBURL:             cfg.MongoDBURL,
		MongoDBDatabase:        cfg.MongoDBDatabase,
		FilePath:               cfg.FilePath,
		StablecoinsTableName:   cfg.SchemaMapping.Stablecoins.TableName,
		MintsTableName:         cfg.SchemaMapping.Mints.TableName,
		TokenAccountsTableName: cfg.SchemaMapping.TokenAccounts.TableName,
	}

	var store storage.Store
	switch cfg.Backend {
	case "postgres":
		pool, err := dbpool.NewSharedPool(ctx, cfg.PostgresURL, cfg.PostgresPool)
		if err != nil {
			return nil, err
		}
		a.resourceManager.Register("postgres-pool", pool)
		store, err = storage.NewStoreWithDB(storeCfg, pool.DB())
		if err != nil {
			return nil, err
		}
	default:
		var err error
		store, err = storage.NewStore(storeCfg)
		if err != nil {
			return nil, err
		}
		if cfg.Backend == "memory" || cfg.Backend == "" {
			a.Logger.Warn().Msg("factory.memory_store: state is lost on restart, do not use in production")
		}
	}
	a.resourceManager.Register("storage", store)
	return store, nil
}

// Dependencies returns the services the HTTP layer needs.
func (a *App) Dependencies() httpserver.Dependencies {
	deps := httpserver.Dependencies{
		Issuance: a.Issuance,
		Faucet:   a.Faucet,
		Breakers: a.Breakers,
		Metrics:  a.metricsCollector,
		Gatherer: a.registry,
		Logger:   a.Logger,
	}
	// A nil *MemoryStore must not become a non-nil interface.
	if a.Idempotency != nil {
		deps.Idempotency = a.Idempotency
	}
	return deps
}

// Router returns the chi router with factory routes registered.
func (a *App) Router() chi.Router {
	a.routerOnce.Do(func() {
		a.router = chi.NewRouter()
		httpserver.ConfigureRouter(a.router, a.Config, a.Dependencies())
	})
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.Router()
}

// Server builds a standalone HTTP server from the server config.
func (a *App) Server() *httpserver.Server {
	return httpserver.New(a.Config, a.Dependencies())
}

// Registry returns the Prometheus registry serving /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	return a.resourceManager.Close()
}

// NewHandler is a convenience that constructs an App and returns its handler.
func NewHandler(ctx context.Context, cfg *config.Config, opts ...Option) (http.Handler, func(context.Context) error, error) {
	app, err := NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func(context.Context) error {
		return app.Close()
	}
	return app.Handler(), shutdown, nil
}

// Config is an exported alias of the internal configuration struct for embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for consumers embedding the factory.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
