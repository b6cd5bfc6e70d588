// Package supply tracks outstanding pegged-token supply with checked arithmetic.
package supply

import (
	"fmt"
	"math"

	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

// Increase returns current + delta, or ErrCalculationOverflow if it exceeds uint64.
func Increase(current, delta uint64) (uint64, error) {
	if delta > math.MaxUint64-current {
		return 0, fmt.Errorf("%w: supply %d + %d", stablecoin.ErrCalculationOverflow, current, delta)
	}
	return current + delta, nil
}

// Decrease returns current - delta, or ErrCalculationOverflow if delta > current.
func Decrease(current, delta uint64) (uint64, error) {
	if delta > current {
		return 0, fmt.Errorf("%w: supply %d - %d", stablecoin.ErrCalculationOverflow, current, delta)
	}
	return current - delta, nil
}
