package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a token quantity in atomic units for a mint with fixed decimals.
//
// Examples:
//   - 1.5 bonds (6 decimals)   = Amount{Atomic: 1500000, Decimals: 6}
//   - 0.5 pegged (9 decimals)  = Amount{Atomic: 500000000, Decimals: 9}
type Amount struct {
	Atomic   uint64
	Decimals uint8
}

var (
	// ErrOverflow occurs when a value does not fit in 64 bits.
	ErrOverflow = errors.New("money: arithmetic overflow")

	// ErrInvalidFormat occurs when parsing fails.
	ErrInvalidFormat = errors.New("money: invalid format")

	// ErrExcessPrecision occurs when a major amount has more fractional
	// digits than the mint supports. Amounts are never rounded.
	ErrExcessPrecision = errors.New("money: more fractional digits than decimals")
)

// New creates an Amount from atomic units.
func New(atomic uint64, decimals uint8) Amount {
	return Amount{Atomic: atomic, Decimals: decimals}
}

// ParseAtomic parses a base-10 atomic units string.
func ParseAtomic(atomic string, decimals uint8) (Amount, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(atomic), 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return Amount{}, ErrOverflow
		}
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return Amount{Atomic: value, Decimals: decimals}, nil
}

// ParseMajor creates an Amount from a major unit string (e.g., "10.50").
//
// Examples:
//   - ParseMajor("1.5", 6)     → 1500000
//   - ParseMajor("10", 0)      → 10
//   - ParseMajor("0.0000001", 6) → ErrExcessPrecision
func ParseMajor(major string, decimals uint8) (Amount, error) {
	major = strings.TrimSpace(major)
	integerPart, fractionalPart, hasPoint := strings.Cut(major, ".")
	if strings.Contains(fractionalPart, ".") {
		return Amount{}, fmt.Errorf("%w: too many decimal points", ErrInvalidFormat)
	}
	if integerPart == "" || (hasPoint && fractionalPart == "") {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidFormat, major)
	}

	integerVal, err := strconv.ParseUint(integerPart, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return Amount{}, ErrOverflow
		}
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	fractionalPart = strings.TrimRight(fractionalPart, "0")
	if len(fractionalPart) > int(decimals) {
		return Amount{}, ErrExcessPrecision
	}

	var fraction uint64
	if fractionalPart != "" {
		fraction, err = strconv.ParseUint(fractionalPart, 10, 64)
		if err != nil {
			return Amount{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		fraction *= pow10(decimals - uint8(len(fractionalPart)))
	}

	multiplier := pow10(decimals)
	if integerVal > (math.MaxUint64-fraction)/multiplier {
		return Amount{}, ErrOverflow
	}
	return Amount{Atomic: integerVal*multiplier + fraction, Decimals: decimals}, nil
}

// ToMajor converts the amount to a major unit string with all decimal places.
//
// Examples:
//   - Amount{1500000, 6}.ToMajor() → "1.500000"
//   - Amount{7, 0}.ToMajor()       → "7"
func (a Amount) ToMajor() string {
	if a.Decimals == 0 {
		return strconv.FormatUint(a.Atomic, 10)
	}

	divisor := pow10(a.Decimals)
	integerPart := a.Atomic / divisor
	fractionalStr := strconv.FormatUint(a.Atomic%divisor, 10)

	var buf strings.Builder
	buf.Grow(20 + 1 + int(a.Decimals))
	buf.WriteString(strconv.FormatUint(integerPart, 10))
	buf.WriteByte('.')
	for i := len(fractionalStr); i < int(a.Decimals); i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(fractionalStr)
	return buf.String()
}

// ToAtomic returns the atomic units as a string.
func (a Amount) ToAtomic() string {
	return strconv.FormatUint(a.Atomic, 10)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.Atomic == 0
}

// String returns a human-readable representation.
func (a Amount) String() string {
	return a.ToMajor()
}

// pow10 returns 10^n. Decimals are capped at 9 by mint validation, but any
// n up to 19 fits.
func pow10(n uint8) uint64 {
	result := uint64(1)
	for i := uint8(0); i < n; i++ {
		result *= 10
	}
	return result
}
