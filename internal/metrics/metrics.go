package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the stablecoin factory.
type Metrics struct {
	// Transition metrics
	MintsTotal              *prometheus.CounterVec
	RedeemsTotal            *prometheus.CounterVec
	TransitionsFailedTotal  *prometheus.CounterVec
	CollateralMovedTotal    *prometheus.CounterVec
	TransitionDuration      *prometheus.HistogramVec
	SupplyTokens            *prometheus.GaugeVec
	StablecoinsCreatedTotal prometheus.Counter
	FaucetDripsTotal        prometheus.Counter

	// Oracle metrics
	OracleReadsTotal   *prometheus.CounterVec
	OracleReadDuration *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Idempotency metrics
	IdempotencyOutcomesTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		MintsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_mints_total",
				Help: "Total number of successful mint transitions",
			},
			[]string{"stablecoin"},
		),
		RedeemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_redeems_total",
				Help: "Total number of successful redeem transitions",
			},
			[]string{"stablecoin"},
		),
		TransitionsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_transitions_failed_total",
				Help: "Total number of rolled back transitions by reason",
			},
			[]string{"operation", "reason"},
		),
		CollateralMovedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_collateral_moved_total",
				Help: "Collateral moved in atomic units (into custody on mint, out on redeem)",
			},
			[]string{"operation"},
		),
		TransitionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factory_transition_duration_seconds",
				Help:    "Time taken by a transition including the oracle read",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		SupplyTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "factory_supply_tokens",
				Help: "Recorded total supply of a stablecoin in atomic units",
			},
			[]string{"stablecoin"},
		),
		StablecoinsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "factory_stablecoins_created_total",
				Help: "Total number of stablecoins created",
			},
		),
		FaucetDripsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "factory_faucet_drips_total",
				Help: "Total number of test bond faucet drips",
			},
		),

		OracleReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_oracle_reads_total",
				Help: "Total number of oracle reads by source and outcome",
			},
			[]string{"source", "status"},
		),
		OracleReadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factory_oracle_read_duration_seconds",
				Help:    "Duration of oracle reads (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0005, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"source"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_rate_limit_hits_total",
				Help: "Total number of requests rejected by rate limiting",
			},
			[]string{"limit_type"},
		),

		IdempotencyOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factory_idempotency_outcomes_total",
				Help: "Idempotency-Key lookups by outcome (stored, replayed, in_progress, key_reused)",
			},
			[]string{"outcome"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factory_db_query_duration_seconds",
				Help:    "Duration of storage operations",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation", "backend"},
		),
	}
}

// ObserveMint records a committed mint.
func (m *Metrics) ObserveMint(stablecoin string, collateralIn uint64, newSupply uint64, duration time.Duration) {
	m.MintsTotal.WithLabelValues(stablecoin).Inc()
	m.CollateralMovedTotal.WithLabelValues("mint").Add(float64(collateralIn))
	m.SupplyTokens.WithLabelValues(stablecoin).Set(float64(newSupply))
	m.TransitionDuration.WithLabelValues("mint").Observe(duration.Seconds())
}

// ObserveRedeem records a committed redeem.
func (m *Metrics) ObserveRedeem(stablecoin string, collateralOut uint64, newSupply uint64, duration time.Duration) {
	m.RedeemsTotal.WithLabelValues(stablecoin).Inc()
	m.CollateralMovedTotal.WithLabelValues("redeem").Add(float64(collateralOut))
	m.SupplyTokens.WithLabelValues(stablecoin).Set(float64(newSupply))
	m.TransitionDuration.WithLabelValues("redeem").Observe(duration.Seconds())
}

// ObserveTransitionFailure records a rolled back transition.
func (m *Metrics) ObserveTransitionFailure(operation, reason string, duration time.Duration) {
	m.TransitionsFailedTotal.WithLabelValues(operation, reason).Inc()
	m.TransitionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveCreate records a created stablecoin.
func (m *Metrics) ObserveCreate(stablecoin string) {
	m.StablecoinsCreatedTotal.Inc()
	m.SupplyTokens.WithLabelValues(stablecoin).Set(0)
}

// ObserveFaucetDrip records a faucet drip.
func (m *Metrics) ObserveFaucetDrip() {
	m.FaucetDripsTotal.Inc()
}

// ObserveOracleRead records an oracle read. Errors are bucketed by message.
func (m *Metrics) ObserveOracleRead(source string, duration time.Duration, err error) {
	m.OracleReadDuration.WithLabelValues(source).Observe(duration.Seconds())
	m.OracleReadsTotal.WithLabelValues(source, oracleStatus(err)).Inc()
}

func oracleStatus(err error) string {
	if err == nil {
		return "success"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "not found"):
		return "not_found"
	case strings.Contains(msg, "invalid"):
		return "invalid"
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "circuit breaker"):
		return "unavailable"
	default:
		return "error"
	}
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}

// ObserveIdempotency records how a keyed request was handled.
func (m *Metrics) ObserveIdempotency(outcome string) {
	m.IdempotencyOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDBQuery records a storage operation.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}
