package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// MongoCollections names the collections a MongoDBStore uses. Empty fields
// fall back to the defaults.
type MongoCollections struct {
	Stablecoins   string // Default: "stablecoins"
	Mints         string // Default: "mints"
	TokenAccounts string // Default: "token_accounts"
}

// MongoDBStore implements Store using MongoDB.
//
// WithinTx uses a multi-document transaction, so the deployment must be a
// replica set or sharded cluster. A write conflict aborts the transaction and
// is returned to the caller without a retry.
type MongoDBStore struct {
	client        *mongo.Client
	stablecoins   *mongo.Collection
	mints         *mongo.Collection
	tokenAccounts *mongo.Collection
}

// NewMongoDBStore creates a new MongoDB-backed store.
func NewMongoDBStore(connectionString, database string, names MongoCollections) (*MongoDBStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoDBStore{
		client:        client,
		stablecoins:   db.Collection(orDefault(names.Stablecoins, "stablecoins")),
		mints:         db.Collection(orDefault(names.Mints, "mints")),
		tokenAccounts: db.Collection(orDefault(names.TokenAccounts, "token_accounts")),
	}

	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// createIndexes creates necessary indexes for collections.
func (s *MongoDBStore) createIndexes(ctx context.Context) error {
	_, err := s.tokenAccounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create token account indexes: %w", err)
	}

	_, err = s.stablecoins.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "authority", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create stablecoin indexes: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// WithinTx runs fn inside one MongoDB session transaction.
func (s *MongoDBStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	if err := session.StartTransaction(); err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	sc := mongo.NewSessionContext(ctx, session)

	if err := fn(sc, &ledgerTx{rows: &mongoRows{store: s}}); err != nil {
		_ = session.AbortTransaction(context.Background())
		return err
	}
	if err := session.CommitTransaction(sc); err != nil {
		_ = session.AbortTransaction(context.Background())
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetStablecoin retrieves a record by address.
func (s *MongoDBStore) GetStablecoin(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	return (&mongoRows{store: s}).loadRecord(ctx, addr)
}

// ListStablecoins returns matching records ordered by creation time.
func (s *MongoDBStore) ListStablecoins(ctx context.Context, authority solana.PublicKey) ([]stablecoin.Record, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	if !authority.IsZero() {
		filter["authority"] = authority.String()
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.stablecoins.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list stablecoins: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]stablecoin.Record, 0)
	for cursor.Next(ctx) {
		var doc mongoRecord
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode stablecoin: %w", err)
		}
		r, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate stablecoins: %w", err)
	}
	return out, nil
}

// GetMint retrieves a mint by address.
func (s *MongoDBStore) GetMint(ctx context.Context, addr solana.PublicKey) (Mint, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	return (&mongoRows{store: s}).loadMint(ctx, addr)
}

// GetAccount retrieves a token account by address.
func (s *MongoDBStore) GetAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()
	return (&mongoRows{store: s}).loadAccount(ctx, addr)
}

// Amounts are stored as decimal strings; BSON has no unsigned 64-bit integer.
type mongoMint struct {
	ID        string `bson:"_id"`
	Decimals  int32  `bson:"decimals"`
	Authority string `bson:"authority"`
	Supply    string `bson:"supply"`
}

type mongoTokenAccount struct {
	ID     string `bson:"_id"`
	Mint   string `bson:"mint"`
	Owner  string `bson:"owner"`
	Amount string `bson:"amount"`
}

type mongoRecord struct {
	ID             string    `bson:"_id"`
	Authority      string    `bson:"authority"`
	BondMint       string    `bson:"bond_mint"`
	StablecoinMint string    `bson:"stablecoin_mint"`
	Custody        string    `bson:"custody"`
	OracleFeed     string    `bson:"oracle_feed"`
	Bump           int32     `bson:"bump"`
	Decimals       int32     `bson:"decimals"`
	TotalSupply    string    `bson:"total_supply"`
	Name           string    `bson:"name"`
	Symbol         string    `bson:"symbol"`
	IconURL        string    `bson:"icon_url"`
	TargetCurrency string    `bson:"target_currency"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func newMongoRecord(r stablecoin.Record) mongoRecord {
	return mongoRecord{
		ID:             r.Address.String(),
		Authority:      r.Authority.String(),
		BondMint:       r.BondMint.String(),
		StablecoinMint: r.StablecoinMint.String(),
		Custody:        r.Custody.String(),
		OracleFeed:     r.OracleFeed.String(),
		Bump:           int32(r.Bump),
		Decimals:       int32(r.Decimals),
		TotalSupply:    formatAmount(r.TotalSupply),
		Name:           r.Name,
		Symbol:         r.Symbol,
		IconURL:        r.IconURL,
		TargetCurrency: r.TargetCurrency,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (d mongoRecord) toRecord() (stablecoin.Record, error) {
	keys, err := parseKeys(d.ID, d.Authority, d.BondMint, d.StablecoinMint, d.Custody, d.OracleFeed)
	if err != nil {
		return stablecoin.Record{}, err
	}
	supply, err := parseAmount(d.TotalSupply)
	if err != nil {
		return stablecoin.Record{}, err
	}
	return stablecoin.Record{
		Address:        keys[0],
		Authority:      keys[1],
		BondMint:       keys[2],
		StablecoinMint: keys[3],
		Custody:        keys[4],
		OracleFeed:     keys[5],
		Bump:           uint8(d.Bump),
		Decimals:       uint8(d.Decimals),
		TotalSupply:    supply,
		Name:           d.Name,
		Symbol:         d.Symbol,
		IconURL:        d.IconURL,
		TargetCurrency: d.TargetCurrency,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}, nil
}

// mongoRows implements rowState. Inside WithinTx the context carries the
// session, so every operation joins the transaction.
type mongoRows struct {
	store *MongoDBStore
}

func (m *mongoRows) loadMint(ctx context.Context, addr solana.PublicKey) (Mint, error) {
	var doc mongoMint
	err := m.store.mints.FindOne(ctx, bson.M{"_id": addr.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Mint{}, ErrMintNotFound
	}
	if err != nil {
		return Mint{}, fmt.Errorf("load mint %s: %w", addr, err)
	}

	keys, err := parseKeys(doc.ID, doc.Authority)
	if err != nil {
		return Mint{}, err
	}
	supply, err := parseAmount(doc.Supply)
	if err != nil {
		return Mint{}, err
	}
	return Mint{Address: keys[0], Decimals: uint8(doc.Decimals), Authority: keys[1], Supply: supply}, nil
}

func (m *mongoRows) loadAccount(ctx context.Context, addr solana.PublicKey) (TokenAccount, error) {
	var doc mongoTokenAccount
	err := m.store.tokenAccounts.FindOne(ctx, bson.M{"_id": addr.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return TokenAccount{}, ErrAccountNotFound
	}
	if err != nil {
		return TokenAccount{}, fmt.Errorf("load token account %s: %w", addr, err)
	}

	keys, err := parseKeys(doc.ID, doc.Mint, doc.Owner)
	if err != nil {
		return TokenAccount{}, err
	}
	amount, err := parseAmount(doc.Amount)
	if err != nil {
		return TokenAccount{}, err
	}
	return TokenAccount{Address: keys[0], Mint: keys[1], Owner: keys[2], Amount: amount}, nil
}

func (m *mongoRows) loadRecord(ctx context.Context, addr solana.PublicKey) (stablecoin.Record, error) {
	var doc mongoRecord
	err := m.store.stablecoins.FindOne(ctx, bson.M{"_id": addr.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return stablecoin.Record{}, stablecoin.ErrNotFound
	}
	if err != nil {
		return stablecoin.Record{}, fmt.Errorf("load stablecoin %s: %w", addr, err)
	}
	return doc.toRecord()
}

func (m *mongoRows) putMint(ctx context.Context, mint Mint, create bool) error {
	doc := mongoMint{
		ID:        mint.Address.String(),
		Decimals:  int32(mint.Decimals),
		Authority: mint.Authority.String(),
		Supply:    formatAmount(mint.Supply),
	}
	return m.put(ctx, m.store.mints, doc.ID, doc, create, ErrAccountExists, "mint")
}

func (m *mongoRows) putAccount(ctx context.Context, a TokenAccount, create bool) error {
	doc := mongoTokenAccount{
		ID:     a.Address.String(),
		Mint:   a.Mint.String(),
		Owner:  a.Owner.String(),
		Amount: formatAmount(a.Amount),
	}
	return m.put(ctx, m.store.tokenAccounts, doc.ID, doc, create, ErrAccountExists, "token account")
}

func (m *mongoRows) putRecord(ctx context.Context, r stablecoin.Record, create bool) error {
	doc := newMongoRecord(r)
	return m.put(ctx, m.store.stablecoins, doc.ID, doc, create, stablecoin.ErrAlreadyExists, "stablecoin")
}

func (m *mongoRows) put(ctx context.Context, coll *mongo.Collection, id string, doc interface{}, create bool, exists error, kind string) error {
	if create {
		_, err := coll.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s %s", exists, kind, id)
		}
		if err != nil {
			return fmt.Errorf("insert %s %s: %w", kind, id, err)
		}
		return nil
	}

	result, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update %s %s: %w", kind, id, ErrAccountNotFound)
	}
	return nil
}
