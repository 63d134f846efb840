package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestEndpointChecker(t *testing.T) {
	var status atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	url := srv.URL + "/.well-known/jwks.json"
	c := NewEndpointChecker("jwks", ComponentKeyService, url, srv.Client())
	if c.Name() != "jwks" || c.Component() != ComponentKeyService {
		t.Errorf("Name() = %q, Component() = %q", c.Name(), c.Component())
	}

	tests := []struct {
		code int
		want Status
	}{
		{http.StatusOK, StatusHealthy},
		{http.StatusMethodNotAllowed, StatusHealthy},
		{http.StatusBadGateway, StatusUnhealthy},
	}
	for _, tt := range tests {
		status.Store(int64(tt.code))
		res := c.Check(context.Background())
		if res.Status != tt.want {
			t.Errorf("status %d: Check() = %v, want %v", tt.code, res.Status, tt.want)
		}
		if res.Details["status_code"] != tt.code || res.Target != url {
			t.Errorf("status %d: target = %q details = %v", tt.code, res.Target, res.Details)
		}
	}
}

func TestEndpointChecker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewEndpointChecker("token_service", ComponentTokenService, url, nil).Check(context.Background())
	if res.Status != StatusUnhealthy || res.Error == nil || res.Target != url {
		t.Errorf("Check() = %+v, want unhealthy with error", res)
	}
}

func TestSizeChecker(t *testing.T) {
	n := 5
	c := NewSizeChecker("replay_table", ComponentReplay, func() int { return n }, 10)

	if res := c.Check(context.Background()); res.Status != StatusHealthy || res.Details["entries"] != 5 {
		t.Errorf("Check() = %+v", res)
	}
	n = 10
	if res := c.Check(context.Background()); res.Status != StatusDegraded {
		t.Errorf("Check() at threshold = %v, want degraded", res.Status)
	}

	unbounded := NewSizeChecker("token_cache", ComponentTokenCache, func() int { return 1 << 20 }, 0)
	if res := unbounded.Check(context.Background()); res.Status != StatusHealthy {
		t.Errorf("Check() without threshold = %v, want healthy", res.Status)
	}
}
