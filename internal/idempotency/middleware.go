package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/internal/logger"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
)

const (
	// HeaderKey carries the client-chosen idempotency key.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed is set on responses served from the store.
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
	// Matches the request body limit of the JSON decoder.
	maxFingerprintBody = 64 << 10
)

// Middleware replays the stored response of a completed request carrying the
// same Idempotency-Key, method, path, API key and body. Only 2xx responses are
// stored; failures release the key so the client may retry. Requests without
// the header pass through.
func Middleware(store Store, m *metrics.Metrics) func(http.Handler) http.Handler {
	observe := func(outcome string) {
		if m != nil {
			m.ObserveIdempotency(outcome)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(HeaderKey)
			if rawKey == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if len(rawKey) > maxKeyLength {
				apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidField, "idempotency key too long", "field", HeaderKey)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBody))
			if err != nil {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))

			key := r.Method + " " + r.URL.Path + " " + r.Header.Get("X-API-Key") + " " + rawKey
			sum := sha256.Sum256(body)
			fingerprint := hex.EncodeToString(sum[:])

			ctx := r.Context()
			stored, err := store.Reserve(ctx, key, fingerprint)
			switch {
			case errors.Is(err, ErrInProgress):
				observe("in_progress")
				apierrors.WriteSimpleError(w, apierrors.ErrCodeIdempotencyInProgress, "a request with this idempotency key is in progress")
				return
			case errors.Is(err, ErrKeyReused):
				observe("key_reused")
				apierrors.WriteSimpleError(w, apierrors.ErrCodeIdempotencyKeyReused, "idempotency key was used with a different request")
				return
			case err != nil:
				log := logger.FromContext(ctx)
				log.Error().Err(err).Msg("idempotency.reserve_failed")
				apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "internal error")
				return
			case stored != nil:
				observe("replayed")
				replay(w, stored)
				return
			}

			completed := false
			defer func() {
				if !completed {
					_ = store.Release(ctx, key)
				}
			}()

			var captured bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < 200 || status >= 300 {
				return
			}

			resp := &Response{
				StatusCode: status,
				Header:     ww.Header().Clone(),
				Body:       captured.Bytes(),
			}
			if err := store.Complete(ctx, key, resp); err != nil {
				log := logger.FromContext(ctx)
				log.Warn().Err(err).Msg("idempotency.store_failed")
				return
			}
			completed = true
			observe("stored")
		})
	}
}

func replay(w http.ResponseWriter, resp *Response) {
	h := w.Header()
	for k, v := range resp.Header {
		h[k] = append([]string(nil), v...)
	}
	h.Set(HeaderReplayed, "true")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
