// Package pricing converts between collateral and pegged-token amounts using
// an oracle reading.
//
// The rate of a reading is mantissa × 10^scale pegged units per collateral
// unit. Conversions are exact integer arithmetic and always truncate toward
// zero, so both mint output and redeemed collateral round down in favour of
// the collateral pool.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// Direction selects which way an amount is converted.
type Direction int

const (
	// Forward converts collateral into pegged tokens (mint).
	Forward Direction = iota
	// Reverse converts pegged tokens into collateral (redeem).
	Reverse
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Reading is one point-in-time oracle result.
type Reading struct {
	Mantissa *big.Int // signed 128-bit significand
	Scale    int32    // power-of-ten exponent, must be non-negative

	// Round metadata, informational only.
	RoundOpenSlot      uint64
	RoundOpenTimestamp int64
}

// NewReading builds a reading from an int64 mantissa.
func NewReading(mantissa int64, scale int32) Reading {
	return Reading{Mantissa: big.NewInt(mantissa), Scale: scale}
}

// MaxMantissaBits bounds a positive mantissa to the signed 128-bit range.
const MaxMantissaBits = 127

var ten = uint256.NewInt(10)

// rate validates r and returns mantissa × 10^scale. overflow reports a rate
// beyond 256 bits, in which case the returned value is meaningless.
func (r Reading) rate() (value *uint256.Int, overflow bool, err error) {
	if r.Scale < 0 {
		return nil, false, fmt.Errorf("%w: negative scale %d", stablecoin.ErrInvalidOracleData, r.Scale)
	}
	if r.Mantissa == nil || r.Mantissa.Sign() <= 0 {
		return nil, false, fmt.Errorf("%w: mantissa %v", stablecoin.ErrInvalidExchangeRate, r.Mantissa)
	}
	if r.Mantissa.BitLen() > MaxMantissaBits {
		return nil, false, fmt.Errorf("%w: mantissa wider than 128 bits", stablecoin.ErrInvalidOracleData)
	}
	value, overflow = uint256.FromBig(r.Mantissa)
	if overflow {
		return value, true, nil
	}
	// At most 78 iterations before the product leaves 256 bits.
	for i := int32(0); i < r.Scale; i++ {
		if _, overflow = value.MulOverflow(value, ten); overflow {
			return value, true, nil
		}
	}
	return value, false, nil
}

// Validate reports whether the reading yields a usable rate.
func (r Reading) Validate() error {
	_, _, err := r.rate()
	return err
}

// ExchangeRate returns mantissa × 10^scale as an exact rational.
func ExchangeRate(r Reading) (*big.Rat, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.Scale)), nil)
	num := new(big.Int).Mul(r.Mantissa, exp)
	return new(big.Rat).SetInt(num), nil
}

// Convert maps amount into the opposite denomination.
//
// Forward returns floor(amount × rate) and fails with ErrCalculationOverflow
// when the result does not fit in a uint64. Reverse returns
// floor(amount / rate).
func Convert(amount uint64, r Reading, dir Direction) (uint64, error) {
	rate, rateOverflow, err := r.rate()
	if err != nil {
		return 0, err
	}

	switch dir {
	case Forward:
		if amount == 0 {
			return 0, nil
		}
		if rateOverflow {
			return 0, fmt.Errorf("%w: exchange rate exceeds 256 bits", stablecoin.ErrCalculationOverflow)
		}
		product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), rate)
		if overflow || !product.IsUint64() {
			return 0, fmt.Errorf("%w: %d × rate does not fit in uint64", stablecoin.ErrCalculationOverflow, amount)
		}
		return product.Uint64(), nil
	case Reverse:
		if rateOverflow {
			return 0, nil
		}
		return new(uint256.Int).Div(uint256.NewInt(amount), rate).Uint64(), nil
	default:
		return 0, fmt.Errorf("pricing: unknown direction %v", dir)
	}
}
