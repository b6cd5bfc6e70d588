package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/CedrosPay/stablecoin-factory/internal/apikey"
	"github.com/CedrosPay/stablecoin-factory/internal/config"
	apierrors "github.com/CedrosPay/stablecoin-factory/internal/errors"
	"github.com/CedrosPay/stablecoin-factory/internal/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func send(handler http.Handler, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/stablecoins", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.GlobalEnabled || cfg.GlobalLimit != 1000 {
		t.Errorf("global = %v/%d, want enabled/1000", cfg.GlobalEnabled, cfg.GlobalLimit)
	}
	if !cfg.PerCallerEnabled || cfg.PerCallerLimit != 60 {
		t.Errorf("per-caller = %v/%d, want enabled/60", cfg.PerCallerEnabled, cfg.PerCallerLimit)
	}
	if !cfg.PerIPEnabled || cfg.PerIPLimit != 120 {
		t.Errorf("per-ip = %v/%d, want enabled/120", cfg.PerIPEnabled, cfg.PerIPLimit)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{
		GlobalEnabled:    true,
		GlobalLimit:      10,
		GlobalWindow:     config.Duration{Duration: time.Minute},
		PerCallerEnabled: true,
		PerCallerLimit:   2,
		PerCallerWindow:  config.Duration{Duration: time.Second},
	}, nil)

	if cfg.GlobalLimit != 10 || cfg.GlobalWindow != time.Minute {
		t.Errorf("global = %d/%s", cfg.GlobalLimit, cfg.GlobalWindow)
	}
	if cfg.PerCallerLimit != 2 || cfg.PerCallerWindow != time.Second {
		t.Errorf("per-caller = %d/%s", cfg.PerCallerLimit, cfg.PerCallerWindow)
	}
	if cfg.PerIPEnabled {
		t.Error("per-ip should stay disabled")
	}
}

func TestGlobalLimiter_Disabled(t *testing.T) {
	handler := GlobalLimiter(Config{GlobalEnabled: false})(okHandler)

	for i := 0; i < 100; i++ {
		if w := send(handler, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestGlobalLimiter_EnforcesLimit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	handler := GlobalLimiter(Config{
		GlobalEnabled: true,
		GlobalLimit:   5,
		GlobalWindow:  time.Minute,
		Metrics:       m,
	})(okHandler)

	for i := 0; i < 5; i++ {
		if w := send(handler, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	w := send(handler, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit exceeded, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", w.Header().Get("Retry-After"))
	}

	var body apierrors.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != apierrors.ErrCodeRateLimitExceeded || !body.Error.Retryable {
		t.Errorf("body = %+v", body.Error)
	}
	if got := promtest.ToFloat64(m.RateLimitHitsTotal.WithLabelValues(LimitGlobal)); got != 1 {
		t.Errorf("rate limit hits = %.0f, want 1", got)
	}
}

func TestGlobalLimiter_OperatorBypass(t *testing.T) {
	keys := apikey.Middleware(apikey.Config{Enabled: true, APIKeys: map[string]apikey.Tier{"op": apikey.TierOperator}})
	handler := keys(GlobalLimiter(Config{GlobalEnabled: true, GlobalLimit: 1, GlobalWindow: time.Minute})(okHandler))

	withKey := func(r *http.Request) { r.Header.Set("X-API-Key", "op") }
	for i := 0; i < 5; i++ {
		if w := send(handler, withKey); w.Code != http.StatusOK {
			t.Fatalf("operator request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestCallerLimiter_PerCallerLimit(t *testing.T) {
	handler := CallerLimiter(Config{
		PerCallerEnabled: true,
		PerCallerLimit:   3,
		PerCallerWindow:  time.Minute,
	})(okHandler)

	as := func(caller string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Caller", caller) }
	}

	for i := 0; i < 3; i++ {
		if w := send(handler, as("CallerOne")); w.Code != http.StatusOK {
			t.Fatalf("caller one request %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := send(handler, as("CallerOne")); w.Code != http.StatusTooManyRequests {
		t.Errorf("caller one: expected 429 after limit, got %d", w.Code)
	}
	if w := send(handler, as("CallerTwo")); w.Code != http.StatusOK {
		t.Errorf("caller two: expected 200, got %d", w.Code)
	}
}

func TestCallerLimiter_IntegratorExempt(t *testing.T) {
	keys := apikey.Middleware(apikey.Config{Enabled: true, APIKeys: map[string]apikey.Tier{"int": apikey.TierIntegrator}})
	handler := keys(CallerLimiter(Config{PerCallerEnabled: true, PerCallerLimit: 1, PerCallerWindow: time.Minute})(okHandler))

	for i := 0; i < 5; i++ {
		w := send(handler, func(r *http.Request) {
			r.Header.Set("X-API-Key", "int")
			r.Header.Set("X-Caller", "Busy")
		})
		if w.Code != http.StatusOK {
			t.Fatalf("integrator request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestIPLimiter(t *testing.T) {
	handler := IPLimiter(Config{PerIPEnabled: true, PerIPLimit: 2, PerIPWindow: time.Minute})(okHandler)

	for i := 0; i < 2; i++ {
		if w := send(handler, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := send(handler, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	other := func(r *http.Request) { r.RemoteAddr = "198.51.100.7:80" }
	if w := send(handler, other); w.Code != http.StatusOK {
		t.Errorf("other IP: expected 200, got %d", w.Code)
	}
}

func TestExtractCallerFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*http.Request)
		want  string
	}{
		{name: "header", setup: func(r *http.Request) { r.Header.Set("X-Caller", "FromHeader") }, want: "FromHeader"},
		{name: "query", setup: func(r *http.Request) { r.URL.RawQuery = "caller=FromQuery" }, want: "FromQuery"},
		{
			name: "header wins",
			setup: func(r *http.Request) {
				r.Header.Set("X-Caller", "Header")
				r.URL.RawQuery = "caller=Query"
			},
			want: "Header",
		},
		{name: "none", setup: func(r *http.Request) {}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			if got := extractCallerFromRequest(req); got != tt.want {
				t.Errorf("extractCallerFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}
