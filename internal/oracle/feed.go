// Package oracle reads exchange-rate results from oracle feeds.
//
// A feed is addressed by its Solana account key. Two sources exist: a static
// in-process table for development and tests, and Switchboard V2 aggregator
// accounts fetched over JSON-RPC.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/stablecoin-factory/internal/circuitbreaker"
	"github.com/CedrosPay/stablecoin-factory/internal/config"
	"github.com/CedrosPay/stablecoin-factory/internal/httputil"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
)

var (
	// ErrFeedNotFound is returned when no feed exists at the requested address.
	ErrFeedNotFound = errors.New("oracle: feed not found")

	// ErrUnavailable is returned when the feed could not be reached.
	ErrUnavailable = errors.New("oracle: feed unavailable")
)

// Source names used in metrics and logs.
const (
	SourceStatic      = "static"
	SourceSwitchboard = "switchboard"
)

// Feed returns the latest confirmed result of an oracle feed.
type Feed interface {
	LatestConfirmedResult(ctx context.Context, feed solana.PublicKey) (pricing.Reading, error)
}

// NewFromConfig builds the configured feed, wrapped with metrics and the
// optional staleness policy.
func NewFromConfig(cfg config.OracleConfig, breakers *circuitbreaker.Manager, m *metrics.Metrics, log zerolog.Logger) (Feed, error) {
	var (
		feed   Feed
		source = strings.ToLower(cfg.Source)
	)

	switch source {
	case SourceStatic, "":
		static, err := NewStaticFeedFromConfig(cfg.Feeds)
		if err != nil {
			return nil, err
		}
		feed = static
		source = SourceStatic
	case SourceSwitchboard:
		if cfg.RPCURL == "" {
			return nil, fmt.Errorf("oracle: switchboard source requires rpc_url")
		}
		client := rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(cfg.RPCURL, &jsonrpc.RPCClientOpts{
			HTTPClient: httputil.NewClient(cfg.Timeout.Duration),
		}))
		feed = NewSwitchboardFeed(client, SwitchboardOptions{
			Commitment: rpc.CommitmentType(cfg.Commitment),
			Timeout:    cfg.Timeout.Duration,
			Breakers:   breakers,
		})
	default:
		return nil, fmt.Errorf("oracle: unknown source %q", cfg.Source)
	}

	log.Info().
		Str("source", source).
		Dur("max_staleness", cfg.MaxStaleness.Duration).
		Msg("oracle.feed_configured")

	return WithMaxStaleness(Instrument(feed, source, m), cfg.MaxStaleness.Duration), nil
}

// instrumented records every read in Prometheus.
type instrumented struct {
	next    Feed
	source  string
	metrics *metrics.Metrics
}

// Instrument wraps next so each read is observed. A nil collector disables it.
func Instrument(next Feed, source string, m *metrics.Metrics) Feed {
	if m == nil {
		return next
	}
	return &instrumented{next: next, source: source, metrics: m}
}

func (i *instrumented) LatestConfirmedResult(ctx context.Context, feed solana.PublicKey) (pricing.Reading, error) {
	start := time.Now()
	reading, err := i.next.LatestConfirmedResult(ctx, feed)
	i.metrics.ObserveOracleRead(i.source, time.Since(start), err)
	return reading, err
}
