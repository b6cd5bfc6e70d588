package stablecoin

import "errors"

// Exchange-engine failures. Every one aborts the whole transition.
var (
	// ErrInvalidOracleData is returned when an oracle reading cannot be used
	// (negative scale, stale round, or a feed other than the bound one).
	ErrInvalidOracleData = errors.New("stablecoin: invalid oracle data")

	// ErrInvalidExchangeRate is returned when mantissa × 10^scale is not strictly positive.
	ErrInvalidExchangeRate = errors.New("stablecoin: invalid exchange rate")

	// ErrCalculationOverflow is returned when checked uint64 arithmetic would wrap.
	ErrCalculationOverflow = errors.New("stablecoin: calculation overflow")
)

// Creation-time validation failures.
var (
	ErrInvalidDecimals = errors.New("stablecoin: invalid decimals")
	ErrInvalidName     = errors.New("stablecoin: invalid name provided")
	ErrInvalidSymbol   = errors.New("stablecoin: invalid symbol provided")
	ErrInvalidIconURL  = errors.New("stablecoin: invalid icon url provided")
	ErrInvalidCurrency = errors.New("stablecoin: invalid currency provided")
	ErrInvalidBondMint = errors.New("stablecoin: invalid bond mint")
)

var (
	// ErrNotFound is returned when no record exists at an address.
	ErrNotFound = errors.New("stablecoin: not found")

	// ErrAlreadyExists is returned when (authority, name) was already used.
	ErrAlreadyExists = errors.New("stablecoin: already exists")
)
