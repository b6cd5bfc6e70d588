package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"

	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/internal/money"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// decodeJSON decodes a JSON request body into the destination struct.
// The reader will be closed after decoding.
func decodeJSON(r io.ReadCloser, dest any) error {
	defer r.Close()
	decoder := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// requestError carries the API code a malformed input maps to.
type requestError struct {
	code    apierrors.ErrorCode
	field   string
	message string
}

func (e *requestError) Error() string {
	return e.message
}

// writeRequestError writes err with its field as detail when it is a
// requestError, and falls back to the domain mapping otherwise.
func writeRequestError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		apierrors.WriteErrorWithDetail(w, reqErr.code, reqErr.message, "field", reqErr.field)
		return
	}
	apierrors.WriteFromError(w, err)
}

// parsePublicKey parses a required base58 address.
func parsePublicKey(field, value string) (solana.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return solana.PublicKey{}, &requestError{code: apierrors.ErrCodeMissingField, field: field, message: field + " is required"}
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, &requestError{code: apierrors.ErrCodeInvalidWallet, field: field, message: fmt.Sprintf("%s is not a valid address", field)}
	}
	return key, nil
}

// parseOptionalPublicKey returns the zero key for an empty value.
func parseOptionalPublicKey(field, value string) (solana.PublicKey, error) {
	if strings.TrimSpace(value) == "" {
		return solana.PublicKey{}, nil
	}
	return parsePublicKey(field, value)
}

// parseAmount parses a positive amount in atomic units. Amounts travel as
// decimal strings so 64-bit values survive JSON clients.
func parseAmount(field, value string) (uint64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, &requestError{code: apierrors.ErrCodeMissingField, field: field, message: field + " is required"}
	}
	amount, err := money.ParseAtomic(value, 0)
	if err != nil {
		return 0, &requestError{code: apierrors.ErrCodeInvalidAmount, field: field, message: fmt.Sprintf("%s must be a base-10 integer of atomic units", field)}
	}
	if amount.IsZero() {
		return 0, &requestError{code: apierrors.ErrCodeInvalidAmount, field: field, message: field + " must be greater than zero"}
	}
	return amount.Atomic, nil
}

// verifySigner checks that wallet signed action. It is a no-op unless
// signatures are required.
func (h *handlers) verifySigner(r *http.Request, wallet solana.PublicKey, action string) error {
	if h.signatures == nil {
		return nil
	}
	return h.signatures.VerifyRequest(r, wallet, action)
}

// uiAmount renders atomic units with the mint's decimals.
func uiAmount(atomic uint64, decimals uint8) string {
	return money.New(atomic, decimals).ToMajor()
}
