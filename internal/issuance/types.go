package issuance

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
	"github.com/CedrosPay/stablecoin-factory/internal/storage"
)

var (
	// ErrFaucetDisabled is returned by Drip when the test bond faucet is off.
	ErrFaucetDisabled = errors.New("issuance: faucet disabled")

	// ErrDripLimitExceeded is returned when a drip is zero or above the configured cap.
	ErrDripLimitExceeded = errors.New("issuance: drip limit exceeded")
)

// Operation names used in receipts, logs and metrics.
const (
	OperationMint   = "mint"
	OperationRedeem = "redeem"
)

// CreateRequest describes a new stablecoin.
type CreateRequest struct {
	Authority  solana.PublicKey
	BondMint   solana.PublicKey
	OracleFeed solana.PublicKey
	stablecoin.Metadata
}

// MintRequest deposits Amount of collateral and mints pegged tokens to Caller.
type MintRequest struct {
	Caller     solana.PublicKey
	Stablecoin solana.PublicKey
	Amount     uint64
	// OracleFeed is optional; when set it must equal the record's bound feed.
	OracleFeed solana.PublicKey
}

// RedeemRequest burns Amount of pegged tokens and returns collateral to Caller.
type RedeemRequest struct {
	Caller     solana.PublicKey
	Stablecoin solana.PublicKey
	Amount     uint64
	OracleFeed solana.PublicKey
}

// Receipt is the outcome of a committed transition.
type Receipt struct {
	// ID identifies the committed transition in logs and responses.
	ID         string
	Operation  string
	Stablecoin solana.PublicKey
	Caller     solana.PublicKey

	// AmountIn is what the caller gave up (collateral on mint, pegged tokens on redeem).
	AmountIn  uint64
	AmountOut uint64

	Reading     pricing.Reading
	TotalSupply uint64
	// Decimals of the pegged mint, for rendering token amounts.
	Decimals uint8

	CollateralAccount solana.PublicKey
	TokenAccount      solana.PublicKey
}

// Quote previews a conversion against the current oracle reading.
type Quote struct {
	Stablecoin solana.PublicKey
	Direction  pricing.Direction
	AmountIn   uint64
	AmountOut  uint64
	Reading    pricing.Reading
}

// Balance is a token account together with its mint's decimals.
type Balance struct {
	storage.TokenAccount
	Decimals uint8
}
