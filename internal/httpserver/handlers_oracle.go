package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gagliardetto/solana-go"

	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/internal/pricing"
	"github.com/CedrosPay/stablecoin-factory/pkg/responders"
)

type readingResponse struct {
	Feed               string `json:"feed,omitempty"`
	Mantissa           string `json:"mantissa"`
	Scale              int32  `json:"scale"`
	Rate               string `json:"rate"`
	RoundOpenSlot      uint64 `json:"roundOpenSlot"`
	RoundOpenTimestamp int64  `json:"roundOpenTimestamp"`
}

func newReadingResponse(feed solana.PublicKey, r pricing.Reading) readingResponse {
	resp := readingResponse{
		Scale:              r.Scale,
		RoundOpenSlot:      r.RoundOpenSlot,
		RoundOpenTimestamp: r.RoundOpenTimestamp,
	}
	if !feed.IsZero() {
		resp.Feed = feed.String()
	}
	if r.Mantissa != nil {
		resp.Mantissa = r.Mantissa.String()
	}
	if rate, err := pricing.ExchangeRate(r); err == nil {
		resp.Rate = rate.RatString()
	}
	return resp
}

// getOracleReading handles GET /v1/oracle/{feed}.
func (h *handlers) getOracleReading(w http.ResponseWriter, r *http.Request) {
	feed, err := parsePublicKey("feed", chi.URLParam(r, "feed"))
	if err != nil {
		writeRequestError(w, err)
		return
	}

	reading, err := h.issuance.Reading(r.Context(), feed)
	if err != nil {
		apierrors.WriteFromError(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, newReadingResponse(feed, reading))
}
