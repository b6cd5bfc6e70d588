package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gagliardetto/solana-go"

	"github.com/CedrosPay/stablecoin-factory/internal/auth"
	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/internal/issuance"
	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
	"github.com/CedrosPay/stablecoin-factory/pkg/responders"
)

// exchangeRequest is the body of mint and redeem calls. Caller is the
// signer of the transition; its signature is checked only when required.
type exchangeRequest struct {
	Caller     string `json:"caller"`
	Amount     string `json:"amount"`
	OracleFeed string `json:"oracleFeed,omitempty"`
}

type exchangeInput struct {
	stablecoin solana.PublicKey
	caller     solana.PublicKey
	amount     uint64
	feed       solana.PublicKey
}

type receiptResponse struct {
	ID                string          `json:"id"`
	Operation         string          `json:"operation"`
	Stablecoin        string          `json:"stablecoin"`
	Caller            string          `json:"caller"`
	AmountIn          string          `json:"amountIn"`
	AmountOut         string          `json:"amountOut"`
	TokenAmountUI     string          `json:"tokenAmountUi"`
	TotalSupply       string          `json:"totalSupply"`
	TotalSupplyUI     string          `json:"totalSupplyUi"`
	CollateralAccount string          `json:"collateralAccount"`
	TokenAccount      string          `json:"tokenAccount"`
	Reading           readingResponse `json:"reading"`
}

func newReceiptResponse(rc issuance.Receipt) receiptResponse {
	// The pegged side is AmountOut on mint and AmountIn on redeem.
	tokenAmount := rc.AmountOut
	if rc.Operation == issuance.OperationRedeem {
		tokenAmount = rc.AmountIn
	}
	return receiptResponse{
		ID:                rc.ID,
		Operation:         rc.Operation,
		Stablecoin:        rc.Stablecoin.String(),
		Caller:            rc.Caller.String(),
		AmountIn:          strconv.FormatUint(rc.AmountIn, 10),
		AmountOut:         strconv.FormatUint(rc.AmountOut, 10),
		TokenAmountUI:     uiAmount(tokenAmount, rc.Decimals),
		TotalSupply:       strconv.FormatUint(rc.TotalSupply, 10),
		TotalSupplyUI:     uiAmount(rc.TotalSupply, rc.Decimals),
		CollateralAccount: rc.CollateralAccount.String(),
		TokenAccount:      rc.TokenAccount.String(),
		Reading:           newReadingResponse(solana.PublicKey{}, rc.Reading),
	}
}

func parseExchangeRequest(r *http.Request) (exchangeInput, error) {
	address, err := parsePublicKey("address", chi.URLParam(r, "address"))
	if err != nil {
		return exchangeInput{}, err
	}

	var req exchangeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		return exchangeInput{}, &requestError{code: apierrors.ErrCodeInvalidField, field: "body", message: "invalid request body: " + err.Error()}
	}
	caller, err := parsePublicKey("caller", req.Caller)
	if err != nil {
		return exchangeInput{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return exchangeInput{}, err
	}
	feed, err := parseOptionalPublicKey("oracleFeed", req.OracleFeed)
	if err != nil {
		return exchangeInput{}, err
	}
	return exchangeInput{stablecoin: address, caller: caller, amount: amount, feed: feed}, nil
}

// mintStablecoin handles POST /v1/stablecoins/{address}/mint.
func (h *handlers) mintStablecoin(w http.ResponseWriter, r *http.Request) {
	in, err := parseExchangeRequest(r)
	if err == nil {
		err = h.verifySigner(r, in.caller, auth.MintAction(in.stablecoin, in.amount))
	}
	if err != nil {
		writeRequestError(w, err)
		return
	}

	receipt, err := h.issuance.Mint(r.Context(), issuance.MintRequest{
		Caller:     in.caller,
		Stablecoin: in.stablecoin,
		Amount:     in.amount,
		OracleFeed: in.feed,
	})
	if err != nil {
		apierrors.WriteFromError(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, newReceiptResponse(receipt))
}

// redeemStablecoin handles POST /v1/stablecoins/{address}/redeem.
func (h *handlers) redeemStablecoin(w http.ResponseWriter, r *http.Request) {
	in, err := parseExchangeRequest(r)
	if err == nil {
		err = h.verifySigner(r, in.caller, auth.RedeemAction(in.stablecoin, in.amount))
	}
	if err != nil {
		writeRequestError(w, err)
		return
	}

	receipt, err := h.issuance.Redeem(r.Context(), issuance.RedeemRequest{
		Caller:     in.caller,
		Stablecoin: in.stablecoin,
		Amount:     in.amount,
		OracleFeed: in.feed,
	})
	if err != nil {
		apierrors.WriteFromError(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, newReceiptResponse(receipt))
}

// quoteStablecoin handles GET /v1/stablecoins/{address}/quote?direction=&amount=.
func (h *handlers) quoteStablecoin(w http.ResponseWriter, r *http.Request) {
	address, err := parsePublicKey("address", chi.URLParam(r, "address"))
	if err != nil {
		writeRequestError(w, err)
		return
	}

	query := r.URL.Query()
	var dir pricing.Direction
	switch query.Get("direction") {
	case "", issuance.OperationMint:
		dir = pricing.Forward
	case issuance.OperationRedeem:
		dir = pricing.Reverse
	default:
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidField, "direction must be mint or redeem", "field", "direction")
		return
	}
	amount, err := parseAmount("amount", query.Get("amount"))
	if err != nil {
		writeRequestError(w, err)
		return
	}
	feed, err := parseOptionalPublicKey("oracleFeed", query.Get("oracleFeed"))
	if err != nil {
		writeRequestError(w, err)
		return
	}

	quote, err := h.issuance.Quote(r.Context(), address, amount, dir, feed)
	if err != nil {
		apierrors.WriteFromError(w, err)
		return
	}

	direction := issuance.OperationMint
	if quote.Direction == pricing.Reverse {
		direction = issuance.OperationRedeem
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"stablecoin": quote.Stablecoin.String(),
		"direction":  direction,
		"amountIn":   strconv.FormatUint(quote.AmountIn, 10),
		"amountOut":  strconv.FormatUint(quote.AmountOut, 10),
		"reading":    newReadingResponse(solana.PublicKey{}, quote.Reading),
	})
}
