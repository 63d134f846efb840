package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, agg *Aggregator, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	RegisterHandlers(mux, agg)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	agg := NewAggregator(0)
	agg.Register(static("down", Unhealthy("", nil)))

	rec := serve(t, agg, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("/healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		code   int
		body   string
	}{
		{"healthy", Healthy(""), http.StatusOK, "healthy"},
		{"degraded", Degraded(""), http.StatusOK, "degraded"},
		{"unhealthy", Unhealthy("", nil), http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(0)
			agg.Register(static("c", tt.result))
			rec := serve(t, agg, "/readyz")
			if rec.Code != tt.code || rec.Body.String() != tt.body {
				t.Errorf("/readyz = %d %q, want %d %q", rec.Code, rec.Body.String(), tt.code, tt.body)
			}
		})
	}
}

func TestDetailed(t *testing.T) {
	agg := NewAggregator(0)
	agg.Register(NewCheckerFunc("jwks", ComponentKeyService, func(context.Context) Result {
		return Healthy("reachable").WithTarget("https://keys.local").WithDetails(map[string]any{"status_code": 200})
	}))
	agg.Register(NewCheckerFunc("token_service", ComponentTokenService, func(context.Context) Result {
		return Unhealthy("unreachable", errors.New("connection refused"))
	}))

	rec := serve(t, agg, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" || len(resp.Checks) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if c := resp.Checks["token_service"]; c.Error != "connection refused" || c.Message != "unreachable" {
		t.Errorf("token_service = %+v", c)
	}
	if c := resp.Checks["jwks"]; c.Target != "https://keys.local" || c.Component != ComponentKeyService {
		t.Errorf("jwks = %+v", c)
	}
	if resp.Components[ComponentKeyService] != "healthy" || resp.Components[ComponentTokenService] != "unhealthy" {
		t.Errorf("components = %v", resp.Components)
	}
}

func TestHandlers_RejectPost(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux, NewAggregator(0))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /healthz = %d, want 405", rec.Code)
	}
}
