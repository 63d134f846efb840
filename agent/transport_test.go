package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jonwraymond/agentauth/auth"
)

func newTicketTool(t *testing.T, f *fixture, scope string) *httptest.Server {
	t.Helper()
	verifier, err := auth.NewAccessTokenVerifier(auth.AccessTokenVerifierConfig{
		Audience: tickets,
		Issuer:   f.ts.Issuer(),
		Keys:     auth.NewJWKSKeyProvider(auth.JWKSConfig{URL: f.ts.JWKSURL(), HTTPClient: f.ts.Client()}),
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(auth.RequireScope(verifier, scope, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grant := auth.GrantFromContext(r.Context())
		_, _ = io.WriteString(w, grant.AgentID)
	})))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransport_AuthorizesRequests(t *testing.T) {
	f := newFixture(t, nil, "tickets.read")
	tool := newTicketTool(t, f, "tickets.read")
	client := f.agent.Client(tickets, "tickets.read")

	for range 3 {
		resp, err := client.Get(tool.URL)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK || string(body) != testAgent {
			t.Fatalf("status = %d, body = %q", resp.StatusCode, body)
		}
	}
	if n := len(f.ts.Exchanges()); n != 1 {
		t.Errorf("exchanges = %d, want 1", n)
	}
}

func TestTransport_InsufficientScopeIsForbidden(t *testing.T) {
	f := newFixture(t, nil, "tickets.read", "tickets.write")
	tool := newTicketTool(t, f, "tickets.write")

	resp, err := f.agent.Client(tickets, "tickets.read").Get(tool.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("WWW-Authenticate"), `scope="tickets.write"`) {
		t.Errorf("WWW-Authenticate = %q", resp.Header.Get("WWW-Authenticate"))
	}
}

func TestTransport_RetriesOnceAfterUnauthorized(t *testing.T) {
	f := newFixture(t, nil, "tickets.write")

	var (
		mu      sync.Mutex
		seen    []string
		bodies  []string
		rejects = 1
	)
	tool := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Header.Get("Authorization"))
		bodies = append(bodies, string(body))
		if rejects > 0 {
			rejects--
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer tool.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, tool.URL, strings.NewReader(`{"title":"printer"}`))
	resp, err := f.agent.Client(tickets, "tickets.write").Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] == seen[1] {
		t.Errorf("retry did not carry a fresh token: %q", seen)
	}
	if bodies[1] != `{"title":"printer"}` {
		t.Errorf("retried body = %q", bodies[1])
	}
}

func TestTransport_TokenErrorSurfaces(t *testing.T) {
	f := newFixture(t, nil, "tickets.read")
	tool := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("tool reached without a token")
	}))
	defer tool.Close()

	_, err := f.agent.Client(tickets, "tickets.delete").Get(tool.URL)
	if err == nil || auth.KindOf(err) != auth.KindPolicyDenied {
		t.Errorf("Get() error = %v, want PolicyDenied", err)
	}
}
