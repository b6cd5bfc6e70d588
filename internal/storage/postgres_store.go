package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/lib/pq"

	"github.com/CedrosPay/stablecoin-factory/internal/config"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL.
//
// Amounts are NUMERIC(20,0) so the full uint64 range round-trips. Rows read
// inside WithinTx are locked with SELECT ... FOR UPDATE until commit.
type PostgresStore struct {
	db                     *sql.DB
	ownsDB                 bool   // Track if we created the DB connection (for Close())
	stablecoinsTableName   string // Configurable table name (default: "stablecoins")
	mintsTableName         string // Configurable table name (default: "mints")
	tokenAccountsTableName string // Configurable table name (default: "token_accounts")
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(connectionString string, poolConfig config.PostgresPoolConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, poolConfig)

	store := newPostgresStore(db, true)
	if err := store.createPostgresTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB creates a PostgreSQL-backed store on a shared connection pool.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := newPostgresStore(db, false)
	if err := store.createPostgresTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func newPostgresStore(db *sql.DB, owns bool) *PostgresStore {
	return &PostgresStore{
		db:                     db,
		ownsDB:                 owns,
		stablecoinsTableName:   "stablecoins",
		mintsTableName:         "mints",
		tokenAccountsTableName: "token_accounts",
	}
}

// WithTableNames sets custom table names and creates any that are missing.
func (s *PostgresStore) WithTableNames(stablecoins, mints, tokenAccounts string) error {
	if stablecoins != "" {
		s.stablecoinsTableName = stablecoins
	}
	if mints != "" {
		s.mintsTableName = mints
	}
	if tokenAccounts != "" {
		s.tokenAccountsTableName = tokenAccounts
	}
	return s.createPostgresTables()
}

func (s *PostgresStore) createPostgresTables() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			address TEXT PRIMARY KEY,
			decimals SMALLINT NOT NULL,
			authority TEXT NOT NULL,
			supply NUMERIC(20,0) NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS %s (
			address TEXT PRIMARY KEY,
			mint TEXT NOT NULL,
			owner TEXT NOT NULL,
			amount NUMERIC(20,0) NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS %s (
			address TEXT PRIMARY KEY,
			authority TEXT NOT NULL,
			bond_mint TEXT NOT NULL,
			stablecoin_mint TEXT NOT NULL,
			custody TEXT NOT NULL,
			oracle_feed TEXT NOT NULL,
			bump SMALLINT NOT NULL,
			decimals SMALLINT NOT NULL,
			total_supply NUMERIC(20,0) NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			icon_url TEXT NOT NULL DEFAULT '',
			target_currency TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(owner);
		CREATE INDEX IF NOT EXISTS idx_%s_authority ON %s(authority, created_at);
	`,
		s.mintsTableName,
		s.tokenAccountsTableName,
		s.stablecoinsTableName,
		s.tokenAccountsTableName, s.tokenAccountsTableName,
		s.stablecoinsTableName, s.stablecoinsTableName,
	)

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the connection pool if this store opened it.
func (s *PostgresStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// WithinTx runs fn inside one SQL transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	rows := &pgRows{store: s, q: sqlTx, lock: true}
	if err := fn(ctx, &ledgerTx{rows: rows}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetStablecoin retrieves a record by address.
func (s *PostgresStore) GetStablecoin(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	return (&pgRows{store: s, q: s.db}).loadRecord(ctx, addr)
}

// ListStablecoins returns matching records ordered by creation time.
func (s *PostgresStore) ListStablecoins(ctx context.Context, authority solana.PublicKey) ([]stablecoin.Record, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s`, recordColumns, s.stablecoinsTableName)
	var args []interface{}
	if !authority.IsZero() {
		query += ` WHERE authority = $1`
		args = append(args, authority.String())
	}
	query += ` ORDER BY created_at, address`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stablecoins: %w", err)
	}
	defer rows.Close()

	out := make([]stablecoin.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stablecoins: %w", err)
	}
	return out, nil
}

// GetMint retrieves a mint by address.
func (s *PostgresStore) GetMint(ctx context.Context, addr solana.PublicKey) (Mint, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	return (&pgRows{store: s, q: s.db}).loadMint(ctx, addr)
}

// GetAccount retrieves a token account by address.
func (s *PostgresStore) GetAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	return (&pgRows{store: s, q: s.db}).loadAccount(ctx, addr)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// pgRows implements rowState over a querier.
type pgRows struct {
	store *PostgresStore
	q     querier
	lock  bool
}

func (p *pgRows) forUpdate() string {
	if p.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (p *pgRows) loadMint(ctx context.Context, addr solana.PublicKey) (Mint, error) {
	query := fmt.Sprintf(`SELECT address, decimals, authority, supply FROM %s WHERE address = $1%s`,
		p.store.mintsTableName, p.forUpdate())

	var address, authority, supply string
	var m Mint
	err := p.q.QueryRowContext(ctx, query, addr.String()).Scan(&address, &m.Decimals, &authority, &supply)
	if err == sql.ErrNoRows {
		return Mint{}, ErrMintNotFound
	}
	if err != nil {
		return Mint{}, fmt.Errorf("load mint %s: %w", addr, err)
	}
	if m.Address, err = solana.PublicKeyFromBase58(address); err != nil {
		return Mint{}, fmt.Errorf("parse mint address: %w", err)
	}
	if m.Authority, err = solana.PublicKeyFromBase58(authority); err != nil {
		return Mint{}, fmt.Errorf("parse mint authority: %w", err)
	}
	if m.Supply, err = parseAmount(supply); err != nil {
		return Mint{}, err
	}
	return m, nil
}

func (p *pgRows) loadAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error) {
	query := fmt.Sprintf(`SELECT address, mint, owner, amount FROM %s WHERE address = $1%s`,
		p.store.tokenAccountsTableName, p.forUpdate())

	var address, mint, owner, amount string
	err := p.q.QueryRowContext(ctx, query, addr.String()).Scan(&address, &mint, &owner, &amount)
	if err == sql.ErrNoRows {
		return TokenAccount{}, ErrAccountNotFound
	}
	if err != nil {
		return TokenAccount{}, fmt.Errorf("load token account %s: %w", addr, err)
	}

	var a TokenAccount
	keys, err := parseKeys(address, mint, owner)
	if err != nil {
		return TokenAccount{}, err
	}
	a.Address, a.Mint, a.Owner = keys[0], keys[1], keys[2]
	if a.Amount, err = parseAmount(amount); err != nil {
		return TokenAccount{}, err
	}
	return a, nil
}

const recordColumns = `address, authority, bond_mint, stablecoin_mint, custody, oracle_feed,
	bump, decimals, total_supply, name, symbol, icon_url, target_currency, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (stablecoin.Record, error) {
	var r stablecoin.Record
	var address, authority, bondMint, stablecoinMint, custody, oracleFeed, supply string
	err := row.Scan(&address, &authority, &bondMint, &stablecoinMint, &custody, &oracleFeed,
		&r.Bump, &r.Decimals, &supply, &r.Name, &r.Symbol, &r.IconURL, &r.TargetCurrency,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return stablecoin.Record{}, err
	}

	keys, err := parseKeys(address, authority, bondMint, stablecoinMint, custody, oracleFeed)
	if err != nil {
		return stablecoin.Record{}, err
	}
	r.Address, r.Authority, r.BondMint = keys[0], keys[1], keys[2]
	r.StablecoinMint, r.Custody, r.OracleFeed = keys[3], keys[4], keys[5]
	if r.TotalSupply, err = parseAmount(supply); err != nil {
		return stablecoin.Record{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (p *pgRows) loadRecord(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE address = $1%s`,
		recordColumns, p.store.stablecoinsTableName, p.forUpdate())

	r, err := scanRecord(p.q.QueryRowContext(ctx, query, addr.String()))
	if err == sql.ErrNoRows {
		return stablecoin.Record{}, stablecoin.ErrNotFound
	}
	if err != nil {
		return stablecoin.Record{}, fmt.Errorf("load stablecoin %s: %w", addr, err)
	}
	return r, nil
}

func (p *pgRows) putMint(ctx context.Context, m Mint, create bool) error {
	var query string
	if create {
		query = fmt.Sprintf(`INSERT INTO %s (address, decimals, authority, supply) VALUES ($1, $2, $3, $4)`,
			p.store.mintsTableName)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET decimals = $2, authority = $3, supply = $4 WHERE address = $1`,
			p.store.mintsTableName)
	}
	_, err := p.q.ExecContext(ctx, query,
		m.Address.String(), m.Decimals, m.Authority.String(), formatAmount(m.Supply))
	return mapWriteError(err, ErrAccountExists, "mint", m.Address)
}

func (p *pgRows) putAccount(ctx context.Context, a TokenAccount, create bool) error {
	var query string
	if create {
		query = fmt.Sprintf(`INSERT INTO %s (address, mint, owner, amount) VALUES ($1, $2, $3, $4)`,
			p.store.tokenAccountsTableName)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET mint = $2, owner = $3, amount = $4 WHERE address = $1`,
			p.store.tokenAccountsTableName)
	}
	_, err := p.q.ExecContext(ctx, query,
		a.Address.String(), a.Mint.String(), a.Owner.String(), formatAmount(a.Amount))
	return mapWriteError(err, ErrAccountExists, "token account", a.Address)
}

func (p *pgRows) putRecord(ctx context.Context, r stablecoin.Record, create bool) error {
	var query string
	if create {
		query = fmt.Sprintf(`
			INSERT INTO %s (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, p.store.stablecoinsTableName, recordColumns)
	} else {
		query = fmt.Sprintf(`
			UPDATE %s SET
				authority = $2, bond_mint = $3, stablecoin_mint = $4, custody = $5, oracle_feed = $6,
				bump = $7, decimals = $8, total_supply = $9, name = $10, symbol = $11,
				icon_url = $12, target_currency = $13, created_at = $14, updated_at = $15
			WHERE address = $1
		`, p.store.stablecoinsTableName)
	}
	_, err := p.q.ExecContext(ctx, query,
		r.Address.String(), r.Authority.String(), r.BondMint.String(), r.StablecoinMint.String(),
		r.Custody.String(), r.OracleFeed.String(), r.Bump, r.Decimals, formatAmount(r.TotalSupply),
		r.Name, r.Symbol, r.IconURL, r.TargetCurrency, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	return mapWriteError(err, stablecoin.ErrAlreadyExists, "stablecoin", r.Address)
}

func mapWriteError(err error, exists error, kind string, addr solana.PublicKey) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s %s", exists, kind, addr)
	}
	return fmt.Errorf("write %s %s: %w", kind, addr, err)
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func parseKeys(values ...string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, len(values))
	for i, v := range values {
		k, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return nil, fmt.Errorf("parse public key %q: %w", v, err)
		}
		keys[i] = k
	}
	return keys, nil
}
