package errors

// ErrorCode represents a machine-readable error identifier for API clients.
type ErrorCode string

// Exchange Errors (oracle reading and conversion)
const (
	ErrCodeInvalidOracleData   ErrorCode = "invalid_oracle_data"
	ErrCodeInvalidExchangeRate ErrorCode = "invalid_exchange_rate"
	ErrCodeCalculationOverflow ErrorCode = "calculation_overflow"
	ErrCodeOracleFeedNotFound  ErrorCode = "oracle_feed_not_found"
	ErrCodeOracleUnavailable   ErrorCode = "oracle_unavailable"
)

// Creation Errors (stablecoin metadata validation)
const (
	ErrCodeInvalidDecimals ErrorCode = "invalid_decimals"
	ErrCodeInvalidName     ErrorCode = "invalid_name"
	ErrCodeInvalidSymbol   ErrorCode = "invalid_symbol"
	ErrCodeInvalidIconURL  ErrorCode = "invalid_icon_url"
	ErrCodeInvalidCurrency ErrorCode = "invalid_currency"
	ErrCodeInvalidBondMint ErrorCode = "invalid_bond_mint"
)

// Token Ledger Errors
const (
	ErrCodeInsufficientFundsToken ErrorCode = "insufficient_funds_token"
	ErrCodeMissingTokenAccount    ErrorCode = "missing_token_account"
	ErrCodeInvalidTokenMint       ErrorCode = "invalid_token_mint"
	ErrCodeUnauthorizedSigner     ErrorCode = "unauthorized_signer"
	ErrCodeInvalidSignature       ErrorCode = "invalid_signature"
)

// Validation Errors (Request input validation)
const (
	ErrCodeMissingField  ErrorCode = "missing_field"
	ErrCodeInvalidField  ErrorCode = "invalid_field"
	ErrCodeInvalidAmount ErrorCode = "invalid_amount"
	ErrCodeInvalidWallet ErrorCode = "invalid_wallet"
)

// Resource/State Errors
const (
	ErrCodeStablecoinNotFound ErrorCode = "stablecoin_not_found"
	ErrCodeStablecoinExists   ErrorCode = "stablecoin_exists"
	ErrCodeFaucetDisabled     ErrorCode = "faucet_disabled"
	ErrCodeDripLimitExceeded  ErrorCode = "drip_limit_exceeded"
	ErrCodeRateLimitExceeded  ErrorCode = "rate_limit_exceeded"

	ErrCodeIdempotencyInProgress ErrorCode = "idempotency_in_progress"
	ErrCodeIdempotencyKeyReused  ErrorCode = "idempotency_key_reused"
)

// External Service Errors
const (
	ErrCodeRPCError     ErrorCode = "rpc_error"
	ErrCodeNetworkError ErrorCode = "network_error"
)

// Internal/System Errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Only transport failures and rate limits are retryable; every exchange rule violation is final.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeRPCError,
		ErrCodeNetworkError,
		ErrCodeOracleUnavailable,
		ErrCodeRateLimitExceeded,
		ErrCodeIdempotencyInProgress:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - Client validation errors
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidAmount,
		ErrCodeInvalidWallet,
		ErrCodeInvalidDecimals,
		ErrCodeInvalidName,
		ErrCodeInvalidSymbol,
		ErrCodeInvalidIconURL,
		ErrCodeInvalidCurrency,
		ErrCodeInvalidBondMint,
		ErrCodeInvalidTokenMint,
		ErrCodeDripLimitExceeded:
		return 400

	// 401 Unauthorized - Missing or bad wallet signature
	case ErrCodeInvalidSignature:
		return 401

	// 403 Forbidden - Authorization failures
	case ErrCodeUnauthorizedSigner,
		ErrCodeFaucetDisabled:
		return 403

	// 404 Not Found - Resource not found
	case ErrCodeStablecoinNotFound,
		ErrCodeOracleFeedNotFound:
		return 404

	// 409 Conflict
	case ErrCodeStablecoinExists,
		ErrCodeIdempotencyInProgress:
		return 409

	// 422 Unprocessable Entity - The request was well formed but the exchange rules reject it
	case ErrCodeInvalidOracleData,
		ErrCodeInvalidExchangeRate,
		ErrCodeCalculationOverflow,
		ErrCodeInsufficientFundsToken,
		ErrCodeMissingTokenAccount,
		ErrCodeIdempotencyKeyReused:
		return 422

	// 429 Too Many Requests
	case ErrCodeRateLimitExceeded:
		return 429

	// 502 Bad Gateway - External service errors
	case ErrCodeRPCError,
		ErrCodeNetworkError:
		return 502

	// 503 Service Unavailable - Oracle breaker open or feed unreachable
	case ErrCodeOracleUnavailable:
		return 503

	// 500 Internal Server Error - System/internal errors
	default:
		return 500
	}
}
