package stablecoin

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Name, symbol and currency bounds match the on-chain account layout. Icon
// URLs are stored off-chain and allow 128 bytes instead of its 32.
const (
	MaxDecimals       = 9
	MaxNameLength     = 32
	MaxSymbolLength   = 8
	MaxIconURLLength  = 128
	MaxCurrencyLength = 8

	recordSeed = "stablecoin"
	mintSeed   = "mint"
)

// Record is the persistent state of one pegged-token instance.
//
// Only TotalSupply and UpdatedAt change after creation, and only through a
// Mint or Redeem transition.
type Record struct {
	Address        solana.PublicKey `json:"address"`
	Authority      solana.PublicKey `json:"authority"`
	BondMint       solana.PublicKey `json:"bondMint"`
	StablecoinMint solana.PublicKey `json:"stablecoinMint"`
	Custody        solana.PublicKey `json:"custody"`
	OracleFeed     solana.PublicKey `json:"oracleFeed"`
	Bump           uint8            `json:"bump"`
	Decimals       uint8            `json:"decimals"`
	TotalSupply    uint64           `json:"totalSupply"`
	Name           string           `json:"name"`
	Symbol         string           `json:"symbol"`
	IconURL        string           `json:"iconUrl"`
	TargetCurrency string           `json:"targetCurrency"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// DeriveAddress returns the record address for (authority, name) under programID.
// The derivation is deterministic, so the same pair always maps to one record.
func DeriveAddress(programID, authority solana.PublicKey, name string) (solana.PublicKey, uint8, error) {
	if err := ValidateName(name); err != nil {
		return solana.PublicKey{}, 0, err
	}
	return solana.FindProgramAddress(
		[][]byte{[]byte(recordSeed), authority.Bytes(), []byte(name)},
		programID,
	)
}

// DeriveCustody returns the collateral custody account of a record: the
// associated token account of the record address for the bond mint.
func DeriveCustody(record, bondMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(record, bondMint)
	return addr, err
}

// DeriveMint returns the pegged-token mint address of a record.
func DeriveMint(programID, record solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(mintSeed), record.Bytes()}, programID)
	return addr, err
}
