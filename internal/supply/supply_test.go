package supply

import (
	"errors"
	"math"
	"testing"

	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

func TestIncrease(t *testing.T) {
	tests := []struct {
		name    string
		current uint64
		delta   uint64
		want    uint64
		wantErr bool
	}{
		{name: "from zero", current: 0, delta: 1500, want: 1500},
		{name: "zero delta", current: 42, delta: 0, want: 42},
		{name: "up to max", current: math.MaxUint64 - 1, delta: 1, want: math.MaxUint64},
		{name: "overflow by one", current: math.MaxUint64 - 1, delta: 2, wantErr: true},
		{name: "overflow at max", current: math.MaxUint64, delta: math.MaxUint64, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Increase(tt.current, tt.delta)
			if tt.wantErr {
				if !errors.Is(err, stablecoin.ErrCalculationOverflow) {
					t.Fatalf("Increase() error = %v, want ErrCalculationOverflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Increase() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Increase() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDecrease(t *testing.T) {
	tests := []struct {
		name    string
		current uint64
		delta   uint64
		want    uint64
		wantErr bool
	}{
		{name: "partial", current: 1500, delta: 500, want: 1000},
		{name: "to zero", current: 500, delta: 500, want: 0},
		{name: "underflow", current: 5, delta: 10, wantErr: true},
		{name: "underflow from zero", current: 0, delta: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decrease(tt.current, tt.delta)
			if tt.wantErr {
				if !errors.Is(err, stablecoin.ErrCalculationOverflow) {
					t.Fatalf("Decrease() error = %v, want ErrCalculationOverflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decrease() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decrease() = %d, want %d", got, tt.want)
			}
		})
	}
}
