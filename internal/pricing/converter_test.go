package pricing

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		amount   uint64
		mantissa int64
		scale    int32
		dir      Direction
		want     uint64
	}{
		{name: "forward unit rate", amount: 1000, mantissa: 1, scale: 0, dir: Forward, want: 1000},
		{name: "forward rate three", amount: 1000, mantissa: 3, scale: 0, dir: Forward, want: 3000},
		{name: "forward scaled rate", amount: 10, mantissa: 15, scale: 1, dir: Forward, want: 1500},
		{name: "forward zero amount", amount: 0, mantissa: 7, scale: 2, dir: Forward, want: 0},
		{name: "reverse truncates", amount: 500, mantissa: 3, scale: 0, dir: Reverse, want: 166},
		{name: "reverse scaled truncates", amount: 500, mantissa: 15, scale: 1, dir: Reverse, want: 3},
		{name: "reverse below one unit", amount: 2, mantissa: 3, scale: 0, dir: Reverse, want: 0},
		{name: "reverse exact", amount: 3000, mantissa: 3, scale: 0, dir: Reverse, want: 1000},
		{name: "forward max amount at unit rate", amount: math.MaxUint64, mantissa: 1, scale: 0, dir: Forward, want: math.MaxUint64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.amount, NewReading(tt.mantissa, tt.scale), tt.dir)
			if err != nil {
				t.Fatalf("Convert() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Convert() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConvert_RejectsReading(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		wantErr error
	}{
		{name: "negative scale", reading: NewReading(150, -1), wantErr: stablecoin.ErrInvalidOracleData},
		{name: "negative scale wins over zero mantissa", reading: NewReading(0, -2), wantErr: stablecoin.ErrInvalidOracleData},
		{name: "zero mantissa", reading: NewReading(0, 0), wantErr: stablecoin.ErrInvalidExchangeRate},
		{name: "negative mantissa", reading: NewReading(-5, 3), wantErr: stablecoin.ErrInvalidExchangeRate},
		{name: "nil mantissa", reading: Reading{Scale: 1}, wantErr: stablecoin.ErrInvalidExchangeRate},
		{name: "mantissa beyond i128", reading: Reading{Mantissa: new(big.Int).Lsh(big.NewInt(1), 127)}, wantErr: stablecoin.ErrInvalidOracleData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, dir := range []Direction{Forward, Reverse} {
				if _, err := Convert(100, tt.reading, dir); !errors.Is(err, tt.wantErr) {
					t.Errorf("Convert(%v) error = %v, want %v", dir, err, tt.wantErr)
				}
			}
		})
	}
}

func TestConvert_ForwardOverflow(t *testing.T) {
	if _, err := Convert(math.MaxUint64, NewReading(2, 0), Forward); !errors.Is(err, stablecoin.ErrCalculationOverflow) {
		t.Fatalf("Convert() error = %v, want ErrCalculationOverflow", err)
	}

	// 10^100 does not fit in 256 bits.
	huge := NewReading(1, 100)
	if _, err := Convert(1, huge, Forward); !errors.Is(err, stablecoin.ErrCalculationOverflow) {
		t.Fatalf("Convert() error = %v, want ErrCalculationOverflow", err)
	}
	got, err := Convert(math.MaxUint64, huge, Reverse)
	if err != nil {
		t.Fatalf("Convert() reverse unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("Convert() reverse = %d, want 0", got)
	}
}

func TestConvert_WideMantissa(t *testing.T) {
	// 1e20 does not fit in int64 but is a valid i128 mantissa.
	mantissa, _ := new(big.Int).SetString("100000000000000000000", 10)
	r := Reading{Mantissa: mantissa, Scale: 0}

	got, err := Convert(math.MaxUint64, r, Reverse)
	if err != nil {
		t.Fatalf("Convert() reverse error = %v", err)
	}
	if got != 0 {
		t.Errorf("Convert() reverse = %d, want 0", got)
	}
	if _, err := Convert(1, r, Forward); !errors.Is(err, stablecoin.ErrCalculationOverflow) {
		t.Errorf("Convert() forward error = %v, want ErrCalculationOverflow", err)
	}
}

func TestConvert_Deterministic(t *testing.T) {
	r := NewReading(7, 2)
	first, err := Convert(123456, r, Forward)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	for i := 0; i < 100; i++ {
		got, err := Convert(123456, r, Forward)
		if err != nil || got != first {
			t.Fatalf("Convert() run %d = %d, %v; want %d", i, got, err, first)
		}
	}
	if first != 123456*700 {
		t.Errorf("Convert() = %d, want %d", first, 123456*700)
	}
}

func TestExchangeRate(t *testing.T) {
	rate, err := ExchangeRate(NewReading(15, 2))
	if err != nil {
		t.Fatalf("ExchangeRate() error = %v", err)
	}
	if rate.Cmp(big.NewRat(1500, 1)) != 0 {
		t.Errorf("ExchangeRate() = %s, want 1500", rate.RatString())
	}
	if _, err := ExchangeRate(NewReading(15, -2)); !errors.Is(err, stablecoin.ErrInvalidOracleData) {
		t.Errorf("ExchangeRate() error = %v, want ErrInvalidOracleData", err)
	}
}
