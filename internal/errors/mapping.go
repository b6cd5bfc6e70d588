package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/CedrosPay/stablecoin-factory/internal/auth"
	"github.com/CedrosPay/stablecoin-factory/internal/issuance"
	"github.com/CedrosPay/stablecoin-factory/internal/oracle"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
	"github.com/CedrosPay/stablecoin-factory/internal/storage"
)

// sentinelCodes maps domain sentinels to API codes. Order matters: the first
// match wins, so more specific sentinels come first.
var sentinelCodes = []struct {
	err  error
	code ErrorCode
}{
	{stablecoin.ErrInvalidOracleData, ErrCodeInvalidOracleData},
	{stablecoin.ErrInvalidExchangeRate, ErrCodeInvalidExchangeRate},
	{stablecoin.ErrCalculationOverflow, ErrCodeCalculationOverflow},
	{stablecoin.ErrInvalidDecimals, ErrCodeInvalidDecimals},
	{stablecoin.ErrInvalidName, ErrCodeInvalidName},
	{stablecoin.ErrInvalidSymbol, ErrCodeInvalidSymbol},
	{stablecoin.ErrInvalidIconURL, ErrCodeInvalidIconURL},
	{stablecoin.ErrInvalidCurrency, ErrCodeInvalidCurrency},
	{stablecoin.ErrInvalidBondMint, ErrCodeInvalidBondMint},
	{stablecoin.ErrNotFound, ErrCodeStablecoinNotFound},
	{stablecoin.ErrAlreadyExists, ErrCodeStablecoinExists},

	{auth.ErrSignatureRequired, ErrCodeInvalidSignature},
	{auth.ErrInvalidSignature, ErrCodeInvalidSignature},
	{auth.ErrSignerMismatch, ErrCodeInvalidSignature},
	{auth.ErrMessageMismatch, ErrCodeInvalidSignature},
	{auth.ErrMessageExpired, ErrCodeInvalidSignature},
	{auth.ErrSignatureReused, ErrCodeInvalidSignature},

	{oracle.ErrFeedNotFound, ErrCodeOracleFeedNotFound},
	{oracle.ErrUnavailable, ErrCodeOracleUnavailable},

	{storage.ErrInsufficientFunds, ErrCodeInsufficientFundsToken},
	{storage.ErrAccountNotFound, ErrCodeMissingTokenAccount},
	{storage.ErrMintNotFound, ErrCodeInvalidTokenMint},
	{storage.ErrMintMismatch, ErrCodeInvalidTokenMint},
	{storage.ErrOwnerMismatch, ErrCodeUnauthorizedSigner},
	{storage.ErrMintAuthorityMismatch, ErrCodeUnauthorizedSigner},

	{issuance.ErrFaucetDisabled, ErrCodeFaucetDisabled},
	{issuance.ErrDripLimitExceeded, ErrCodeDripLimitExceeded},

	{context.DeadlineExceeded, ErrCodeNetworkError},
}

// FromError maps err to an API code and a client-safe message.
// Unrecognised errors become internal_error with a generic message.
func FromError(err error) (ErrorCode, string) {
	for _, entry := range sentinelCodes {
		if stderrors.Is(err, entry.err) {
			return entry.code, err.Error()
		}
	}
	return ErrCodeInternalError, "internal error"
}

// WriteFromError writes the API error envelope for err.
func WriteFromError(w http.ResponseWriter, err error) {
	code, message := FromError(err)
	WriteSimpleError(w, code, message)
}
