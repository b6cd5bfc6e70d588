package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// Token ledger failures.
var (
	ErrAccountNotFound       = errors.New("storage: token account not found")
	ErrMintNotFound          = errors.New("storage: mint not found")
	ErrAccountExists         = errors.New("storage: account already exists")
	ErrOwnerMismatch         = errors.New("storage: authority does not own token account")
	ErrMintAuthorityMismatch = errors.New("storage: authority is not the mint authority")
	ErrMintMismatch          = errors.New("storage: token account belongs to a different mint")
	ErrInsufficientFunds     = errors.New("storage: insufficient token balance")
)

// Mint is a token type with a single mint authority.
type Mint struct {
	Address   solana.PublicKey `json:"address"`
	Decimals  uint8            `json:"decimals"`
	Authority solana.PublicKey `json:"authority"`
	Supply    uint64           `json:"supply"`
}

// TokenAccount holds a balance of one mint for one owner.
type TokenAccount struct {
	Address solana.PublicKey `json:"address"`
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Amount  uint64           `json:"amount"`
}

// AccountAddress returns the associated token account address of (owner, mint).
func AccountAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account: %w", err)
	}
	return addr, nil
}

// rowState is the row-level access a backend exposes inside one transaction.
// Loads inside a transaction lock the row where the backend supports it.
type rowState interface {
	loadMint(ctx context.Context, addr solana.PublicKey) (Mint, error)
	loadAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error)
	loadRecord(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error)
	putMint(ctx context.Context, m Mint, create bool) error
	putAccount(ctx context.Context, a TokenAccount, create bool) error
	putRecord(ctx context.Context, r stablecoin.Record, create bool) error
}

// ledgerTx applies token-ledger rules on top of a backend's rows, so every
// backend enforces identical authorization and balance checks.
type ledgerTx struct {
	rows rowState
}

var _ Tx = (*ledgerTx)(nil)

func (t *ledgerTx) GetMint(ctx context.Context, addr solana.PublicKey) (Mint, error) {
	return t.rows.loadMint(ctx, addr)
}

func (t *ledgerTx) GetAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error) {
	return t.rows.loadAccount(ctx, addr)
}

func (t *ledgerTx) CreateMint(ctx context.Context, m Mint) error {
	if _, err := t.rows.loadMint(ctx, m.Address); err == nil {
		return fmt.Errorf("%w: mint %s", ErrAccountExists, m.Address)
	} else if !errors.Is(err, ErrMintNotFound) {
		return err
	}
	m.Supply = 0
	return t.rows.putMint(ctx, m, true)
}

func (t *ledgerTx) OpenAccount(ctx context.Context, owner, mint solana.PublicKey) (TokenAccount, error) {
	addr, err := AccountAddress(owner, mint)
	if err != nil {
		return TokenAccount{}, err
	}
	existing, err := t.rows.loadAccount(ctx, addr)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return TokenAccount{}, err
	}
	if _, err := t.rows.loadMint(ctx, mint); err != nil {
		return TokenAccount{}, err
	}
	account := TokenAccount{Address: addr, Mint: mint, Owner: owner}
	if err := t.rows.putAccount(ctx, account, true); err != nil {
		return TokenAccount{}, err
	}
	return account, nil
}

func (t *ledgerTx) Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error {
	src, err := t.rows.loadAccount(ctx, from)
	if err != nil {
		return fmt.Errorf("transfer source %s: %w", from, err)
	}
	if !src.Owner.Equals(authority) {
		return fmt.Errorf("transfer from %s: %w", from, ErrOwnerMismatch)
	}
	if src.Amount < amount {
		return fmt.Errorf("transfer %d from %s holding %d: %w", amount, from, src.Amount, ErrInsufficientFunds)
	}
	if from.Equals(to) {
		return nil
	}
	dst, err := t.rows.loadAccount(ctx, to)
	if err != nil {
		return fmt.Errorf("transfer destination %s: %w", to, err)
	}
	if !dst.Mint.Equals(src.Mint) {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, ErrMintMismatch)
	}
	if amount > math.MaxUint64-dst.Amount {
		return fmt.Errorf("transfer into %s: %w", to, stablecoin.ErrCalculationOverflow)
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := t.rows.putAccount(ctx, src, false); err != nil {
		return err
	}
	return t.rows.putAccount(ctx, dst, false)
}

func (t *ledgerTx) MintTo(ctx context.Context, mint, to, authority solana.PublicKey, amount uint64) error {
	m, err := t.rows.loadMint(ctx, mint)
	if err != nil {
		return fmt.Errorf("mint_to %s: %w", mint, err)
	}
	if !m.Authority.Equals(authority) {
		return fmt.Errorf("mint_to %s: %w", mint, ErrMintAuthorityMismatch)
	}
	dst, err := t.rows.loadAccount(ctx, to)
	if err != nil {
		return fmt.Errorf("mint_to destination %s: %w", to, err)
	}
	if !dst.Mint.Equals(mint) {
		return fmt.Errorf("mint_to %s: %w", to, ErrMintMismatch)
	}
	if amount > math.MaxUint64-m.Supply || amount > math.MaxUint64-dst.Amount {
		return fmt.Errorf("mint_to %s: %w", mint, stablecoin.ErrCalculationOverflow)
	}

	m.Supply += amount
	dst.Amount += amount
	if err := t.rows.putMint(ctx, m, false); err != nil {
		return err
	}
	return t.rows.putAccount(ctx, dst, false)
}

func (t *ledgerTx) Burn(ctx context.Context, mint, from, authority solana.PublicKey, amount uint64) error {
	m, err := t.rows.loadMint(ctx, mint)
	if err != nil {
		return fmt.Errorf("burn %s: %w", mint, err)
	}
	src, err := t.rows.loadAccount(ctx, from)
	if err != nil {
		return fmt.Errorf("burn source %s: %w", from, err)
	}
	if !src.Mint.Equals(mint) {
		return fmt.Errorf("burn from %s: %w", from, ErrMintMismatch)
	}
	if !src.Owner.Equals(authority) {
		return fmt.Errorf("burn from %s: %w", from, ErrOwnerMismatch)
	}
	if src.Amount < amount {
		return fmt.Errorf("burn %d from %s holding %d: %w", amount, from, src.Amount, ErrInsufficientFunds)
	}
	if m.Supply < amount {
		return fmt.Errorf("burn %d from mint %s: %w", amount, mint, stablecoin.ErrCalculationOverflow)
	}

	src.Amount -= amount
	m.Supply -= amount
	if err := t.rows.putAccount(ctx, src, false); err != nil {
		return err
	}
	return t.rows.putMint(ctx, m, false)
}

func (t *ledgerTx) GetStablecoin(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error) {
	return t.rows.loadRecord(ctx, addr)
}

func (t *ledgerTx) CreateStablecoin(ctx context.Context, r stablecoin.Record) error {
	if _, err := t.rows.loadRecord(ctx, r.Address); err == nil {
		return fmt.Errorf("%w: %s", stablecoin.ErrAlreadyExists, r.Address)
	} else if !errors.Is(err, stablecoin.ErrNotFound) {
		return err
	}
	return t.rows.putRecord(ctx, r, true)
}

func (t *ledgerTx) SaveStablecoin(ctx context.Context, r stablecoin.Record) error {
	if _, err := t.rows.loadRecord(ctx, r.Address); err != nil {
		return err
	}
	return t.rows.putRecord(ctx, r, false)
}
