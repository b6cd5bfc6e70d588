package issuance

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/config"
	"github.com/CedrosPay/stablecoin-factory/internal/logger"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
	"github.com/CedrosPay/stablecoin-factory/internal/storage"
)

const (
	faucetSeed     = "faucet"
	faucetMintSeed = "faucet_bond"
)

// Faucet issues test bond tokens in development deployments.
type Faucet struct {
	store     storage.Store
	enabled   bool
	mint      solana.PublicKey
	authority solana.PublicKey
	decimals  uint8
	maxDrip   uint64
	metrics   *metrics.Metrics
}

// NewFaucet derives the faucet bond mint under programID and creates it if
// the faucet is enabled and the mint does not exist yet.
func NewFaucet(ctx context.Context, programID solana.PublicKey, store storage.Store, cfg config.FaucetConfig, metricsCollector *metrics.Metrics) (*Faucet, error) {
	authority, _, err := solana.FindProgramAddress([][]byte{[]byte(faucetSeed)}, programID)
	if err != nil {
		return nil, fmt.Errorf("derive faucet authority: %w", err)
	}
	mint, _, err := solana.FindProgramAddress([][]byte{[]byte(faucetMintSeed), authority.Bytes()}, programID)
	if err != nil {
		return nil, fmt.Errorf("derive faucet mint: %w", err)
	}

	f := &Faucet{
		store:     store,
		enabled:   cfg.Enabled,
		mint:      mint,
		authority: authority,
		decimals:  cfg.Decimals,
		maxDrip:   cfg.MaxDrip,
		metrics:   metricsCollector,
	}
	if !f.enabled {
		return f, nil
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		// A mint left by an earlier run keeps its decimals.
		if existing, err := tx.GetMint(ctx, mint); err == nil {
			f.decimals = existing.Decimals
			return nil
		} else if !errors.Is(err, storage.ErrMintNotFound) {
			return err
		}
		return tx.CreateMint(ctx, storage.Mint{Address: mint, Decimals: cfg.Decimals, Authority: authority})
	})
	if err != nil {
		return nil, fmt.Errorf("init faucet mint: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("bond_mint", mint.String()).
		Uint64("max_drip", cfg.MaxDrip).
		Msg("faucet.initialized")
	return f, nil
}

// Enabled reports whether Drip can succeed.
func (f *Faucet) Enabled() bool {
	return f.enabled
}

// BondMint returns the faucet's test bond mint.
func (f *Faucet) BondMint() solana.PublicKey {
	return f.mint
}

// Decimals returns the decimals of the faucet bond mint.
func (f *Faucet) Decimals() uint8 {
	return f.decimals
}

// Drip mints amount test bonds to owner's associated account.
func (f *Faucet) Drip(ctx context.Context, owner solana.PublicKey, amount uint64) (storage.TokenAccount, error) {
	if !f.enabled {
		return storage.TokenAccount{}, ErrFaucetDisabled
	}
	if amount == 0 || amount > f.maxDrip {
		return storage.TokenAccount{}, fmt.Errorf("%w: %d not in 1..%d", ErrDripLimitExceeded, amount, f.maxDrip)
	}

	var account storage.TokenAccount
	err := f.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		acct, err := tx.OpenAccount(ctx, owner, f.mint)
		if err != nil {
			return err
		}
		if err := tx.MintTo(ctx, f.mint, acct.Address, f.authority, amount); err != nil {
			return err
		}
		account, err = tx.GetAccount(ctx, acct.Address)
		return err
	})
	if err != nil {
		return storage.TokenAccount{}, err
	}

	if f.metrics != nil {
		f.metrics.ObserveFaucetDrip()
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("owner", logger.TruncateAddress(owner.String())).
		Uint64("amount", amount).
		Uint64("balance", account.Amount).
		Msg("faucet.drip_completed")
	return account, nil
}
