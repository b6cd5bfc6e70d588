package httpserver

import (
	"net/http"
	"time"

	"github.com/CedrosPay/stablecoin-factory/internal/circuitbreaker"
	"github.com/CedrosPay/stablecoin-factory/pkg/responders"
)

// health returns service status. The service is degraded while the oracle
// RPC breaker is open, since no transition can read a rate.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	breakerState := h.breakers.State(circuitbreaker.ServiceOracleRPC)
	status := "ok"
	statusCode := http.StatusOK
	if breakerState == "open" {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]any{
		"status":        status,
		"uptime":        now.Sub(serverStartTime).String(),
		"timestamp":     now.UTC(),
		"oracleSource":  h.cfg.Oracle.Source,
		"oracleBreaker": breakerState,
		"faucetEnabled": h.faucet != nil && h.faucet.Enabled(),
	}
	if h.issuance != nil {
		response["programId"] = h.issuance.ProgramID().String()
	}
	if h.cfg.Server.RoutePrefix != "" {
		response["routePrefix"] = h.cfg.Server.RoutePrefix
	}

	responders.JSON(w, statusCode, response)
}
