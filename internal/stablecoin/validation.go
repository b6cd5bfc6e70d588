package stablecoin

import (
	"fmt"
	"net/url"
	"strings"
)

// Metadata is the descriptive part of a record, validated once at creation.
type Metadata struct {
	Name           string
	Symbol         string
	Decimals       uint8
	IconURL        string
	TargetCurrency string
}

// Validate checks every metadata field and returns the first failure.
func (m Metadata) Validate() error {
	if m.Decimals > MaxDecimals {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidDecimals, m.Decimals, MaxDecimals)
	}
	if err := ValidateName(m.Name); err != nil {
		return err
	}
	if err := validateBounded(m.Symbol, MaxSymbolLength, ErrInvalidSymbol); err != nil {
		return err
	}
	if err := ValidateIconURL(m.IconURL); err != nil {
		return err
	}
	return validateBounded(m.TargetCurrency, MaxCurrencyLength, ErrInvalidCurrency)
}

// ValidateName checks the name is non-empty and fits a derivation seed.
func ValidateName(name string) error {
	return validateBounded(name, MaxNameLength, ErrInvalidName)
}

// ValidateIconURL accepts an empty icon or an absolute http(s), ipfs or ar URL.
func ValidateIconURL(icon string) error {
	if icon == "" {
		return nil
	}
	if len(icon) > MaxIconURLLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIconURL, MaxIconURLLength)
	}
	u, err := url.Parse(icon)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIconURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ipfs", "ar":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidIconURL, u.Scheme)
	}
	if u.Host == "" && u.Opaque == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidIconURL)
	}
	return nil
}

func validateBounded(value string, max int, sentinel error) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: empty", sentinel)
	}
	if len(value) > max {
		return fmt.Errorf("%w: longer than %d bytes", sentinel, max)
	}
	return nil
}
