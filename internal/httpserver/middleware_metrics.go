package httpserver

import (
	"crypto/subtle"
	"net/http"

	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/pkg/responders"
)

// adminMetricsAuth protects /metrics with a bearer key. With no key
// configured the endpoint is open.
func adminMetricsAuth(apiKey string) func(http.Handler) http.Handler {
	expected := []byte("Bearer " + apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), expected) != 1 {
				resp := apierrors.NewErrorResponse(apierrors.ErrCodeInvalidField, "Invalid or missing admin API key", nil)
				responders.JSON(w, http.StatusUnauthorized, resp)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
