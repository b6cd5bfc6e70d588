package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

var errForced = errors.New("forced failure")

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

// seedMint creates a mint with authority and one funded account for owner.
func seedMint(t *testing.T, store Store, authority, owner solana.PublicKey, amount uint64) (Mint, TokenAccount) {
	t.Helper()
	mint := Mint{Address: newKey(), Decimals: 6, Authority: authority}
	var account TokenAccount
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.CreateMint(ctx, mint); err != nil {
			return err
		}
		var err error
		if account, err = tx.OpenAccount(ctx, owner, mint.Address); err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}
		return tx.MintTo(ctx, mint.Address, account.Address, authority, amount)
	})
	if err != nil {
		t.Fatalf("seed mint: %v", err)
	}
	account.Amount = amount
	return mint, account
}

func TestMemoryStore_TransferRules(t *testing.T) {
	ctx := context.Background()
	authority, alice, bob := newKey(), newKey(), newKey()

	tests := []struct {
		name      string
		signer    func(alice, bob solana.PublicKey) solana.PublicKey
		amount    uint64
		wantErr   error
		wantAlice uint64
		wantBob   uint64
	}{
		{name: "owner moves funds", signer: func(a, _ solana.PublicKey) solana.PublicKey { return a }, amount: 40, wantAlice: 60, wantBob: 40},
		{name: "moves full balance", signer: func(a, _ solana.PublicKey) solana.PublicKey { return a }, amount: 100, wantAlice: 0, wantBob: 100},
		{name: "wrong signer", signer: func(_, b solana.PublicKey) solana.PublicKey { return b }, amount: 10, wantErr: ErrOwnerMismatch, wantAlice: 100},
		{name: "insufficient balance", signer: func(a, _ solana.PublicKey) solana.PublicKey { return a }, amount: 101, wantErr: ErrInsufficientFunds, wantAlice: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			mint, src := seedMint(t, store, authority, alice, 100)

			var dst TokenAccount
			if err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				var err error
				dst, err = tx.OpenAccount(ctx, bob, mint.Address)
				return err
			}); err != nil {
				t.Fatalf("open account: %v", err)
			}

			err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				return tx.Transfer(ctx, src.Address, dst.Address, tt.signer(alice, bob), tt.amount)
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transfer() error = %v, want %v", err, tt.wantErr)
			}

			gotSrc, _ := store.GetAccount(ctx, src.Address)
			gotDst, _ := store.GetAccount(ctx, dst.Address)
			if gotSrc.Amount != tt.wantAlice || gotDst.Amount != tt.wantBob {
				t.Errorf("balances = (%d, %d), want (%d, %d)", gotSrc.Amount, gotDst.Amount, tt.wantAlice, tt.wantBob)
			}
		})
	}
}

func TestMemoryStore_TransferMintMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	authority, alice := newKey(), newKey()
	_, a := seedMint(t, store, authority, alice, 10)
	_, b := seedMint(t, store, authority, alice, 0)

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Transfer(ctx, a.Address, b.Address, alice, 5)
	})
	if !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("Transfer() error = %v, want ErrMintMismatch", err)
	}
}

func TestMemoryStore_MintToAndBurn(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	authority, owner := newKey(), newKey()
	mint, account := seedMint(t, store, authority, owner, 50)

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.MintTo(ctx, mint.Address, account.Address, owner, 1)
	})
	if !errors.Is(err, ErrMintAuthorityMismatch) {
		t.Fatalf("MintTo() error = %v, want ErrMintAuthorityMismatch", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Burn(ctx, mint.Address, account.Address, authority, 1)
	})
	if !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("Burn() by non-owner error = %v, want ErrOwnerMismatch", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Burn(ctx, mint.Address, account.Address, owner, 51)
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Burn() beyond balance error = %v, want ErrInsufficientFunds", err)
	}

	if err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Burn(ctx, mint.Address, account.Address, owner, 20)
	}); err != nil {
		t.Fatalf("Burn() error = %v", err)
	}

	gotMint, _ := store.GetMint(ctx, mint.Address)
	gotAccount, _ := store.GetAccount(ctx, account.Address)
	if gotMint.Supply != 30 || gotAccount.Amount != 30 {
		t.Errorf("supply, balance = %d, %d; want 30, 30", gotMint.Supply, gotAccount.Amount)
	}
}

func TestMemoryStore_MintToOverflow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	authority, owner := newKey(), newKey()
	mint, account := seedMint(t, store, authority, owner, math.MaxUint64)

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.MintTo(ctx, mint.Address, account.Address, authority, 1)
	})
	if !errors.Is(err, stablecoin.ErrCalculationOverflow) {
		t.Fatalf("MintTo() error = %v, want ErrCalculationOverflow", err)
	}
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	authority, alice, bob := newKey(), newKey(), newKey()
	mint, src := seedMint(t, store, authority, alice, 100)

	var dstAddr solana.PublicKey
	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		dst, err := tx.OpenAccount(ctx, bob, mint.Address)
		if err != nil {
			return err
		}
		dstAddr = dst.Address
		if err := tx.Transfer(ctx, src.Address, dst.Address, alice, 60); err != nil {
			return err
		}
		if err := tx.MintTo(ctx, mint.Address, dst.Address, authority, 5); err != nil {
			return err
		}
		return errForced
	})
	if !errors.Is(err, errForced) {
		t.Fatalf("WithinTx() error = %v, want errForced", err)
	}

	gotSrc, _ := store.GetAccount(ctx, src.Address)
	if gotSrc.Amount != 100 {
		t.Errorf("source balance = %d, want 100", gotSrc.Amount)
	}
	if _, err := store.GetAccount(ctx, dstAddr); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrAccountNotFound", err)
	}
	gotMint, _ := store.GetMint(ctx, mint.Address)
	if gotMint.Supply != 100 {
		t.Errorf("supply = %d, want 100", gotMint.Supply)
	}
}

func TestMemoryStore_CanceledContextRollsBack(t *testing.T) {
	store := NewMemoryStore()
	authority, owner := newKey(), newKey()
	mint, account := seedMint(t, store, authority, owner, 10)

	ctx, cancel := context.WithCancel(context.Background())
	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.MintTo(ctx, mint.Address, account.Address, authority, 5); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithinTx() error = %v, want context.Canceled", err)
	}
	got, _ := store.GetAccount(context.Background(), account.Address)
	if got.Amount != 10 {
		t.Errorf("balance = %d, want 10", got.Amount)
	}
}

func TestMemoryStore_OpenAccountIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	authority, owner := newKey(), newKey()
	mint, account := seedMint(t, store, authority, owner, 7)

	var again TokenAccount
	if err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		again, err = tx.OpenAccount(ctx, owner, mint.Address)
		return err
	}); err != nil {
		t.Fatalf("OpenAccount() error = %v", err)
	}
	if !again.Address.Equals(account.Address) || again.Amount != 7 {
		t.Errorf("OpenAccount() = %+v, want existing account with 7", again)
	}

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.OpenAccount(ctx, owner, newKey())
		return err
	})
	if !errors.Is(err, ErrMintNotFound) {
		t.Errorf("OpenAccount() unknown mint error = %v, want ErrMintNotFound", err)
	}
}

func testRecord(authority solana.PublicKey, name string, created time.Time) stablecoin.Record {
	return stablecoin.Record{
		Address:        newKey(),
		Authority:      authority,
		BondMint:       newKey(),
		StablecoinMint: newKey(),
		Custody:        newKey(),
		OracleFeed:     newKey(),
		Decimals:       6,
		Name:           name,
		Symbol:         "TST",
		TargetCurrency: "USD",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestMemoryStore_Stablecoins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	alice, bob := newKey(), newKey()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []stablecoin.Record{
		testRecord(alice, "second", base.Add(time.Minute)),
		testRecord(bob, "other", base),
		testRecord(alice, "first", base),
	}
	for _, r := range records {
		r := r
		if err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.CreateStablecoin(ctx, r)
		}); err != nil {
			t.Fatalf("CreateStablecoin() error = %v", err)
		}
	}

	err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateStablecoin(ctx, records[0])
	})
	if !errors.Is(err, stablecoin.ErrAlreadyExists) {
		t.Fatalf("duplicate CreateStablecoin() error = %v, want ErrAlreadyExists", err)
	}

	mine, err := store.ListStablecoins(ctx, alice)
	if err != nil {
		t.Fatalf("ListStablecoins() error = %v", err)
	}
	if len(mine) != 2 || mine[0].Name != "first" || mine[1].Name != "second" {
		t.Errorf("ListStablecoins(alice) = %+v, want [first second]", mine)
	}

	all, _ := store.ListStablecoins(ctx, solana.PublicKey{})
	if len(all) != 3 {
		t.Errorf("ListStablecoins(all) len = %d, want 3", len(all))
	}

	missing := testRecord(alice, "missing", base)
	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SaveStablecoin(ctx, missing)
	})
	if !errors.Is(err, stablecoin.ErrNotFound) {
		t.Errorf("SaveStablecoin() unknown error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetStablecoin(ctx, missing.Address); !errors.Is(err, stablecoin.ErrNotFound) {
		t.Errorf("GetStablecoin() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_PersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "factory.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	authority, owner := newKey(), newKey()
	mint, account := seedMint(t, store, authority, owner, 42)
	record := testRecord(authority, "persisted", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err := store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateStablecoin(ctx, record)
	}); err != nil {
		t.Fatalf("CreateStablecoin() error = %v", err)
	}

	// A failed transaction must not reach the file.
	_ = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.MintTo(ctx, mint.Address, account.Address, authority, 100); err != nil {
			return err
		}
		return errForced
	})

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen NewFileStore() error = %v", err)
	}
	gotMint, err := reopened.GetMint(ctx, mint.Address)
	if err != nil || gotMint.Supply != 42 {
		t.Errorf("GetMint() = %+v, %v; want supply 42", gotMint, err)
	}
	gotAccount, err := reopened.GetAccount(ctx, account.Address)
	if err != nil || gotAccount.Amount != 42 || !gotAccount.Owner.Equals(owner) {
		t.Errorf("GetAccount() = %+v, %v; want 42 owned by %s", gotAccount, err, owner)
	}
	gotRecord, err := reopened.GetStablecoin(ctx, record.Address)
	if err != nil || gotRecord.Name != "persisted" || !gotRecord.OracleFeed.Equals(record.OracleFeed) {
		t.Errorf("GetStablecoin() = %+v, %v", gotRecord, err)
	}
}

func TestFileStore_PersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "factory.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	authority, owner := newKey(), newKey()
	mint, account := seedMint(t, store, authority, owner, 5)

	store.persist = func(snapshot) error { return errForced }
	err = store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.MintTo(ctx, mint.Address, account.Address, authority, 5)
	})
	if !errors.Is(err, errForced) {
		t.Fatalf("WithinTx() error = %v, want errForced", err)
	}
	got, _ := store.GetAccount(ctx, account.Address)
	if got.Amount != 5 {
		t.Errorf("balance = %d, want 5", got.Amount)
	}
}

func TestNewStore_Backends(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err != nil {
		t.Errorf("NewStore(default) error = %v", err)
	}
	if _, err := NewStore(StoreConfig{Backend: "file", FilePath: filepath.Join(t.TempDir(), "s.json")}); err != nil {
		t.Errorf("NewStore(file) error = %v", err)
	}

	failing := []StoreConfig{
		{Backend: "postgres"},
		{Backend: "mongodb"},
		{Backend: "mongodb", MongoDBURL: "mongodb://localhost:27017"},
		{Backend: "file"},
		{Backend: "redis"},
	}
	for _, cfg := range failing {
		if _, err := NewStore(cfg); err == nil {
			t.Errorf("NewStore(%+v) expected error", cfg)
		}
	}
}

func TestWithQueryTimeout(t *testing.T) {
	ctx, cancel := withQueryTimeout(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("withQueryTimeout() did not set a deadline")
	}

	parent, parentCancel := context.WithTimeout(context.Background(), time.Minute)
	defer parentCancel()
	child, childCancel := withQueryTimeout(parent)
	defer childCancel()
	want, _ := parent.Deadline()
	if got, _ := child.Deadline(); !got.Equal(want) {
		t.Errorf("withQueryTimeout() deadline = %v, want parent %v", got, want)
	}
}
