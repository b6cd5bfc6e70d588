package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CedrosPay/stablecoin-factory/internal/auth"
	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/internal/issuance"
	"github.com/CedrosPay/stablecoin-factory/internal/logger"
	"github.com/CedrosPay/stablecoin-factory/internal/stablecoin"
	"github.com/CedrosPay/stablecoin-factory/pkg/responders"
)

type createStablecoinRequest struct {
	Authority      string `json:"authority"`
	BondMint       string `json:"bondMint"`
	OracleFeed     string `json:"oracleFeed"`
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	Decimals       *uint8 `json:"decimals"`
	IconURL        string `json:"iconUrl"`
	TargetCurrency string `json:"targetCurrency"`
}

// stablecoinResponse renders a record with string supply values.
type stablecoinResponse struct {
	stablecoin.Record
	TotalSupply   string `json:"totalSupply"`
	TotalSupplyUI string `json:"totalSupplyUi"`
}

func newStablecoinResponse(r stablecoin.Record) stablecoinResponse {
	return stablecoinResponse{
		Record:        r,
		TotalSupply:   strconv.FormatUint(r.TotalSupply, 10),
		TotalSupplyUI: uiAmount(r.TotalSupply, r.Decimals),
	}
}

// createStablecoin handles POST /v1/stablecoins.
func (h *handlers) createStablecoin(w http.ResponseWriter, r *http.Request) {
	var req createStablecoinRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid request body: "+err.Error())
		return
	}

	create, err := req.toCreateRequest()
	if err == nil {
		err = h.verifySigner(r, create.Authority, auth.CreateAction(create.Name))
	}
	if err != nil {
		writeRequestError(w, err)
		return
	}

	record, err := h.issuance.Create(r.Context(), create)
	if err != nil {
		apierrors.WriteFromError(w, err)
		return
	}

	responders.Created(w, h.cfg.Server.RoutePrefix+"/v1/stablecoins/"+record.Address.String(), newStablecoinResponse(record))
}

func (req createStablecoinRequest) toCreateRequest() (issuance.CreateRequest, error) {
	authority, err := parsePublicKey("authority", req.Authority)
	if err != nil {
		return issuance.CreateRequest{}, err
	}
	bondMint, err := parsePublicKey("bondMint", req.BondMint)
	if err != nil {
		return issuance.CreateRequest{}, err
	}
	feed, err := parsePublicKey("oracleFeed", req.OracleFeed)
	if err != nil {
		return issuance.CreateRequest{}, err
	}
	if req.Decimals == nil {
		return issuance.CreateRequest{}, &requestError{code: apierrors.ErrCodeMissingField, field: "decimals", message: "decimals is required"}
	}

	return issuance.CreateRequest{
		Authority:  authority,
		BondMint:   bondMint,
		OracleFeed: feed,
		Metadata: stablecoin.Metadata{
			Name:           req.Name,
			Symbol:         req.Symbol,
			Decimals:       *req.Decimals,
			IconURL:        req.IconURL,
			TargetCurrency: req.TargetCurrency,
		},
	}, nil
}

// listStablecoins handles GET /v1/stablecoins?authority=.
func (h *handlers) listStablecoins(w http.ResponseWriter, r *http.Request) {
	authority, err := parseOptionalPublicKey("authority", r.URL.Query().Get("authority"))
	if err != nil {
		writeRequestError(w, err)
		return
	}

	records, err := h.issuance.List(r.Context(), authority)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("stablecoins.list_failed")
		apierrors.WriteFromError(w, err)
		return
	}

	items := make([]stablecoinResponse, 0, len(records))
	for _, record := range records {
		items = append(items, newStablecoinResponse(record))
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"stablecoins": items,
		"count":       len(items),
	})
}

// getStablecoin handles GET /v1/stablecoins/{address}.
func (h *handlers) getStablecoin(w http.ResponseWriter, r *http.Request) {
	address, err := parsePublicKey("address", chi.URLParam(r, "address"))
	if err != nil {
		writeRequestError(w, err)
		return
	}

	record, err := h.issuance.Get(r.Context(), address)
	if err != nil {
		apierrors.WriteFromError(w, err)
		return
	}
	responders.JSON(w, http.StatusOK, newStablecoinResponse(record))
}
