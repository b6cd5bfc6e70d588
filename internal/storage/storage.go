package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/config"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// Ledger is the token ledger available inside a transaction.
type Ledger interface {
	GetMint(ctx context.Context, addr solana.PublicKey) (Mint, error)
	GetAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error)
	CreateMint(ctx context.Context, m Mint) error
	// OpenAccount returns the associated token account of (owner, mint),
	// creating an empty one if it does not exist yet.
	OpenAccount(ctx context.Context, owner, mint solana.PublicKey) (TokenAccount, error)

	Transfer(ctx context.Context, from, to, authority solana.PublicKey, amount uint64) error
	MintTo(ctx context.Context, mint, to, authority solana.PublicKey, amount uint64) error
	Burn(ctx context.Context, mint, from, authority solana.PublicKey, amount uint64) error
}

// Records is the stablecoin record store available inside a transaction.
type Records interface {
	GetStablecoin(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error)
	CreateStablecoin(ctx context.Context, r stablecoin.Record) error
	SaveStablecoin(ctx context.Context, r stablecoin.Record) error
}

// Tx is one all-or-nothing unit of work over ledger and records.
type Tx interface {
	Ledger
	Records
}

// Store captures the persistence requirements for the factory.
//
// WithinTx is the only way to mutate state. If fn returns an error, nothing
// it wrote is visible afterwards; otherwise every write is committed together.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetStablecoin(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error)
	// ListStablecoins returns records created by authority, or every record
	// when authority is the zero key.
	ListStablecoins(ctx context.Context, authority solana.PublicKey) ([]stablecoin.Record, error)
	GetMint(ctx context.Context, addr solana.PublicKey) (Mint, error)
	GetAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error)

	Close() error
}

// StoreConfig holds storage backend configuration.
type StoreConfig struct {
	Backend         string // "memory", "postgres", "mongodb", or "file"
	PostgresURL     string
	PostgresPool    config.PostgresPoolConfig
	MongoDBURL      string
	MongoDBDatabase string
	FilePath        string

	// Table names for Postgres, collection names for MongoDB.
	StablecoinsTableName   string // Default: "stablecoins"
	MintsTableName         string // Default: "mints"
	TokenAccountsTableName string // Default: "token_accounts"
}

// NewStore creates a Store instance based on the provided configuration.
func NewStore(cfg StoreConfig) (Store, error) {
	return NewStoreWithDB(cfg, nil)
}

// NewStoreWithDB creates a Store with an optional shared Postgres pool.
func NewStoreWithDB(cfg StoreConfig, sharedDB *sql.DB) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.PostgresURL == "" && sharedDB == nil {
			return nil, fmt.Errorf("postgres backend requires postgres_url")
		}
		var store *PostgresStore
		var err error
		if sharedDB != nil {
			store, err = NewPostgresStoreWithDB(sharedDB)
		} else {
			store, err = NewPostgresStore(cfg.PostgresURL, cfg.PostgresPool)
		}
		if err != nil {
			return nil, err
		}
		if err := store.WithTableNames(cfg.StablecoinsTableName, cfg.MintsTableName, cfg.TokenAccountsTableName); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_url")
		}
		if cfg.MongoDBDatabase == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_database")
		}
		store, err := NewMongoDBStore(cfg.MongoDBURL, cfg.MongoDBDatabase, MongoCollections{
			Stablecoins:   cfg.StablecoinsTableName,
			Mints:         cfg.MintsTableName,
			TokenAccounts: cfg.TokenAccountsTableName,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file backend requires file_path")
		}
		store, err := NewFileStore(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// snapshot is the full state of a memory-backed store.
type snapshot struct {
	mints    map[solana.PublicKey]Mint
	accounts map[solana.PublicKey]TokenAccount
	records  map[solana.PublicKey]stablecoin.Record
}

func newSnapshot() snapshot {
	return snapshot{
		mints:    make(map[solana.PublicKey]Mint),
		accounts: make(map[solana.PublicKey]TokenAccount),
		records:  make(map[solana.PublicKey]stablecoin.Record),
	}
}

// MemoryStore is an in-memory Store suitable for tests and single-instance
// development. One transaction runs at a time.
type MemoryStore struct {
	mu   sync.Mutex
	data snapshot

	// persist, when set, must durably write the post-commit state before it
	// becomes visible. A persist failure rolls the transaction back.
	persist func(snapshot) error
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newSnapshot()}
}

// Close implements the Store interface.
func (m *MemoryStore) Close() error {
	return nil
}

// WithinTx runs fn against a staged overlay and publishes it on success.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := &memoryTx{base: m.data, staged: newSnapshot()}
	if err := fn(ctx, &ledgerTx{rows: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.persist == nil {
		m.data.apply(staged.staged)
		return nil
	}
	merged := m.data.clone()
	merged.apply(staged.staged)
	if err := m.persist(merged); err != nil {
		return fmt.Errorf("persist commit: %w", err)
	}
	m.data = merged
	return nil
}

func (s snapshot) clone() snapshot {
	out := snapshot{
		mints:    make(map[solana.PublicKey]Mint, len(s.mints)),
		accounts: make(map[solana.PublicKey]TokenAccount, len(s.accounts)),
		records:  make(map[solana.PublicKey]stablecoin.Record, len(s.records)),
	}
	out.apply(s)
	return out
}

// apply writes every row of staged into s.
func (s snapshot) apply(staged snapshot) {
	for k, v := range staged.mints {
		s.mints[k] = v
	}
	for k, v := range staged.accounts {
		s.accounts[k] = v
	}
	for k, v := range staged.records {
		s.records[k] = v
	}
}

// GetStablecoin retrieves a record by address.
func (m *MemoryStore) GetStablecoin(_ context.Context, addr solana.PublicKey) (stablecoin.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.data.records[addr]
	if !ok {
		return stablecoin.Record{}, stablecoin.ErrNotFound
	}
	return r, nil
}

// ListStablecoins returns matching records ordered by creation time.
func (m *MemoryStore) ListStablecoins(_ context.Context, authority solana.PublicKey) ([]stablecoin.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]stablecoin.Record, 0, len(m.data.records))
	for _, r := range m.data.records {
		if authority.IsZero() || r.Authority.Equals(authority) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

// GetMint retrieves a mint by address.
func (m *MemoryStore) GetMint(_ context.Context, addr solana.PublicKey) (Mint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mint, ok := m.data.mints[addr]
	if !ok {
		return Mint{}, ErrMintNotFound
	}
	return mint, nil
}

// GetAccount retrieves a token account by address.
func (m *MemoryStore) GetAccount(_ context.Context, addr solana.PublicKey) (TokenAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.data.accounts[addr]
	if !ok {
		return TokenAccount{}, ErrAccountNotFound
	}
	return account, nil
}

func sortRecords(records []stablecoin.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Address.String() < records[j].Address.String()
	})
}

// memoryTx reads through staged rows to the committed base.
type memoryTx struct {
	base   snapshot
	staged snapshot
}

func (t *memoryTx) loadMint(_ context.Context, addr solana.PublicKey) (Mint, error) {
	if m, ok := t.staged.mints[addr]; ok {
		return m, nil
	}
	if m, ok := t.base.mints[addr]; ok {
		return m, nil
	}
	return Mint{}, ErrMintNotFound
}

func (t *memoryTx) loadAccount(_ context.Context, addr solana.PublicKey) (TokenAccount, error) {
	if a, ok := t.staged.accounts[addr]; ok {
		return a, nil
	}
	if a, ok := t.base.accounts[addr]; ok {
		return a, nil
	}
	return TokenAccount{}, ErrAccountNotFound
}

func (t *memoryTx) loadRecord(_ context.Context, addr solana.PublicKey) (stablecoin.Record, error) {
	if r, ok := t.staged.records[addr]; ok {
		return r, nil
	}
	if r, ok := t.base.records[addr]; ok {
		return r, nil
	}
	return stablecoin.Record{}, stablecoin.ErrNotFound
}

func (t *memoryTx) putMint(_ context.Context, m Mint, _ bool) error {
	t.staged.mints[m.Address] = m
	return nil
}

func (t *memoryTx) putAccount(_ context.Context, a TokenAccount, _ bool) error {
	t.staged.accounts[a.Address] = a
	return nil
}

func (t *memoryTx) putRecord(_ context.Context, r stablecoin.Record, _ bool) error {
	t.staged.records[r.Address] = r
	return nil
}
