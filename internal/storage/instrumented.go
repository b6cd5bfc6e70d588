package storage

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// InstrumentedStore times every store operation.
type InstrumentedStore struct {
	Store
	backend string
	metrics *metrics.Metrics
}

// Instrument wraps store with query duration metrics. A nil collector returns store as is.
func Instrument(store Store, backend string, m *metrics.Metrics) Store {
	if m == nil {
		return store
	}
	if backend == "" {
		backend = "memory"
	}
	return &InstrumentedStore{Store: store, backend: backend, metrics: m}
}

func (s *InstrumentedStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	defer metrics.MeasureDBQuery(s.metrics, "transaction", s.backend)()
	return s.Store.WithinTx(ctx, fn)
}

func (s *InstrumentedStore) GetStablecoin(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error) {
	defer metrics.MeasureDBQuery(s.metrics, "get_stablecoin", s.backend)()
	return s.Store.GetStablecoin(ctx, addr)
}

func (s *InstrumentedStore) ListStablecoins(ctx context.Context, authority solana.PublicKey) ([]stablecoin.Record, error) {
	defer metrics.MeasureDBQuery(s.metrics, "list_stablecoins", s.backend)()
	return s.Store.ListStablecoins(ctx, authority)
}

func (s *InstrumentedStore) GetMint(ctx context.Context, addr solana.PublicKey) (Mint, error) {
	defer metrics.MeasureDBQuery(s.metrics, "get_mint", s.backend)()
	return s.Store.GetMint(ctx, addr)
}

func (s *InstrumentedStore) GetAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error) {
	defer metrics.MeasureDBQuery(s.metrics, "get_account", s.backend)()
	return s.Store.GetAccount(ctx, addr)
}
