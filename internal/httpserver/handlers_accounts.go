package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/internal/issuance"
	"github.com/CedrosPay/stablecoin-factory/internal/logger"
	"github.com/CedrosPay/stablecoin-factory/pkg/responders"
)

type balanceResponse struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Mint     string `json:"mint"`
	Amount   string `json:"amount"`
	AmountUI string `json:"amountUi"`
	Decimals uint8  `json:"decimals"`
}

func newBalanceResponse(b issuance.Balance) balanceResponse {
	return balanceResponse{
		Address:  b.Address.String(),
		Owner:    b.Owner.String(),
		Mint:     b.Mint.String(),
		Amount:   strconv.FormatUint(b.Amount, 10),
		AmountUI: uiAmount(b.Amount, b.Decimals),
		Decimals: b.Decimals,
	}
}

// getBalance handles GET /v1/balances/{owner}?mint=.
func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parsePublicKey("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeRequestError(w, err)
		return
	}
	mint, err := parsePublicKey("mint", r.URL.Query().Get("mint"))
	if err != nil {
		writeRequestError(w, err)
		return
	}

	balance, err := h.issuance.Balance(r.Context(), owner, mint)
	if err != nil {
		apierrors.WriteFromError(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, newBalanceResponse(balance))
}

type dripRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// dripBonds handles POST /v1/faucet/bonds. It is a test-only surface.
func (h *handlers) dripBonds(w http.ResponseWriter, r *http.Request) {
	if h.faucet == nil || !h.faucet.Enabled() {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeFaucetDisabled, "test bond faucet is disabled")
		return
	}

	var req dripRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid request body: "+err.Error())
		return
	}
	owner, err := parsePublicKey("owner", req.Owner)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	account, err := h.faucet.Drip(r.Context(), owner, amount)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).
			Str("owner", logger.TruncateAddress(owner.String())).
			Msg("faucet.drip_rejected")
		apierrors.WriteFromError(w, err)
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"bondMint": h.faucet.BondMint().String(),
		"dripped":  strconv.FormatUint(amount, 10),
		"account":  newBalanceResponse(issuance.Balance{TokenAccount: account, Decimals: h.faucet.Decimals()}),
	})
}
