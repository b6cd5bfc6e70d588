// Package issuance sequences stablecoin creation and the mint and redeem
// transitions over the token ledger and record store.
//
// The oracle is read and the conversion computed before any state is
// touched. Collateral movement, token mint or burn and the supply update then
// run inside one storage transaction, so a failure at any step leaves every
// balance and the recorded supply unchanged. Nothing is retried.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/logger"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
	"github.com/CedrosPay/stablecoin-factory/internal/oracle"
	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
	"github.com/CedrosPay/stablecoin-factory/internal/storage"
)

// Service orchestrates stablecoin creation, mint and redeem.
type Service struct {
	programID solana.PublicKey
	store     storage.Store
	feed      oracle.Feed
	metrics   *metrics.Metrics // optional
	now       func() time.Time
}

// NewService constructs an issuance service.
func NewService(programID solana.PublicKey, store storage.Store, feed oracle.Feed, metricsCollector *metrics.Metrics) *Service {
	return &Service{
		programID: programID,
		store:     store,
		feed:      feed,
		metrics:   metricsCollector,
		now:       time.Now,
	}
}

// ProgramID returns the program every record address is derived under.
func (s *Service) ProgramID() solana.PublicKey {
	return s.programID
}

// Create validates metadata, creates the pegged-token mint and the collateral
// custody account, and stores a record with zero supply.
func (s *Service) Create(ctx context.Context, req CreateRequest) (stablecoin.Record, error) {
	log := logger.FromContext(ctx)

	if err := req.Metadata.Validate(); err != nil {
		return stablecoin.Record{}, err
	}
	if req.OracleFeed.IsZero() {
		return stablecoin.Record{}, fmt.Errorf("%w: oracle feed is required", stablecoin.ErrInvalidOracleData)
	}
	if req.BondMint.IsZero() {
		return stablecoin.Record{}, fmt.Errorf("%w: bond mint is required", stablecoin.ErrInvalidBondMint)
	}

	address, bump, err := stablecoin.DeriveAddress(s.programID, req.Authority, req.Name)
	if err != nil {
		return stablecoin.Record{}, err
	}
	mintAddress, err := stablecoin.DeriveMint(s.programID, address)
	if err != nil {
		return stablecoin.Record{}, fmt.Errorf("derive mint: %w", err)
	}
	custody, err := stablecoin.DeriveCustody(address, req.BondMint)
	if err != nil {
		return stablecoin.Record{}, fmt.Errorf("derive custody: %w", err)
	}

	now := s.now().UTC()
	record := stablecoin.Record{
		Address:        address,
		Authority:      req.Authority,
		BondMint:       req.BondMint,
		StablecoinMint: mintAddress,
		Custody:        custody,
		OracleFeed:     req.OracleFeed,
		Bump:           bump,
		Decimals:       req.Decimals,
		Name:           req.Name,
		Symbol:         req.Symbol,
		IconURL:        req.IconURL,
		TargetCurrency: req.TargetCurrency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		bond, err := tx.GetMint(ctx, req.BondMint)
		if errors.Is(err, storage.ErrMintNotFound) {
			return fmt.Errorf("%w: %s", stablecoin.ErrInvalidBondMint, req.BondMint)
		}
		if err != nil {
			return err
		}
		if bond.Decimals > stablecoin.MaxDecimals {
			return fmt.Errorf("%w: bond mint has %d decimals", stablecoin.ErrInvalidDecimals, bond.Decimals)
		}

		if err := tx.CreateStablecoin(ctx, record); err != nil {
			return err
		}
		if err := tx.CreateMint(ctx, storage.Mint{
			Address:   mintAddress,
			Decimals:  req.Decimals,
			Authority: address,
		}); err != nil {
			return err
		}
		_, err = tx.OpenAccount(ctx, address, req.BondMint)
		return err
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("authority", logger.TruncateAddress(req.Authority.String())).
			Str("name", req.Name).
			Msg("issuance.create_failed")
		return stablecoin.Record{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveCreate(address.String())
	}
	log.Info().
		Str("stablecoin", address.String()).
		Str("authority", logger.TruncateAddress(req.Authority.String())).
		Str("symbol", req.Symbol).
		Str("bond_mint", logger.TruncateAddress(req.BondMint.String())).
		Msg("issuance.stablecoin_created")

	return record, nil
}

// Get returns the record at address.
func (s *Service) Get(ctx context.Context, address solana.PublicKey) (stablecoin.Record, error) {
	return s.store.GetStablecoin(ctx, address)
}

// List returns records created by authority, or all records for the zero key.
func (s *Service) List(ctx context.Context, authority solana.PublicKey) ([]stablecoin.Record, error) {
	return s.store.ListStablecoins(ctx, authority)
}

// Balance returns the associated token account of (owner, mint). A missing
// account is reported as an empty one at its derived address.
func (s *Service) Balance(ctx context.Context, owner, mint solana.PublicKey) (Balance, error) {
	m, err := s.store.GetMint(ctx, mint)
	if err != nil {
		return Balance{}, err
	}
	addr, err := storage.AccountAddress(owner, mint)
	if err != nil {
		return Balance{}, err
	}
	account, err := s.store.GetAccount(ctx, addr)
	if errors.Is(err, storage.ErrAccountNotFound) {
		account, err = storage.TokenAccount{Address: addr, Mint: mint, Owner: owner}, nil
	}
	if err != nil {
		return Balance{}, err
	}
	return Balance{TokenAccount: account, Decimals: m.Decimals}, nil
}

// Reading returns the latest validated reading of a feed.
func (s *Service) Reading(ctx context.Context, feed solana.PublicKey) (pricing.Reading, error) {
	reading, err := s.feed.LatestConfirmedResult(ctx, feed)
	if err != nil {
		return pricing.Reading{}, err
	}
	if err := reading.Validate(); err != nil {
		return pricing.Reading{}, err
	}
	return reading, nil
}

// readRate reads the record's bound feed. An explicit feed must match it.
func (s *Service) readRate(ctx context.Context, record stablecoin.Record, explicit solana.PublicKey) (pricing.Reading, error) {
	if !explicit.IsZero() && !explicit.Equals(record.OracleFeed) {
		return pricing.Reading{}, fmt.Errorf("%w: feed %s is not bound to %s",
			stablecoin.ErrInvalidOracleData, explicit, record.Address)
	}
	return s.Reading(ctx, record.OracleFeed)
}
