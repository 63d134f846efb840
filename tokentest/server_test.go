package tokentest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/exchange"
	"github.com/jonwraymond/agentauth/keys"
)

const toolAudience = "https://tools.local/tickets"

func exchangeFor(t *testing.T, s *Server, m *keys.Material, scopes ...string) (*auth.AccessToken, error) {
	t.Helper()
	client, err := exchange.NewClient(exchange.ClientConfig{Endpoint: s.TokenURL(), HTTPClient: s.Client()})
	if err != nil {
		t.Fatal(err)
	}
	assertion, err := exchange.NewSigner().Sign(m, s.TokenURL())
	if err != nil {
		t.Fatal(err)
	}
	return client.Exchange(context.Background(), assertion.Raw, toolAudience, scopes)
}

func TestServer_IssuesVerifiableTokens(t *testing.T) {
	s := NewServer(Config{})
	defer s.Close()

	agent := NewAgent("agent://support-bot")
	s.RegisterAgent(agent, "tickets.read", "tickets.write")

	token, err := exchangeFor(t, s, agent, "tickets.read")
	if err != nil {
		t.Fatalf("exchange error = %v", err)
	}
	if token.Subject != agent.AgentID || token.Issuer != s.Issuer() {
		t.Errorf("token = %+v", token)
	}

	jwks := auth.NewJWKSKeyProvider(auth.JWKSConfig{URL: s.JWKSURL(), HTTPClient: s.Client()})
	verifier, err := auth.NewAccessTokenVerifier(auth.AccessTokenVerifierConfig{
		Audience: toolAudience,
		Issuer:   s.Issuer(),
		Keys:     jwks,
	})
	if err != nil {
		t.Fatal(err)
	}
	grant, err := verifier.Verify(context.Background(), token.BearerHeader(), "tickets.read")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if grant.AgentID != agent.AgentID {
		t.Errorf("AgentID = %q", grant.AgentID)
	}

	got := s.Exchanges()
	if len(got) != 1 || got[0].TokenID != token.JWTID || got[0].Audience != toolAudience {
		t.Errorf("Exchanges() = %+v", got)
	}
}

func TestServer_ScopePolicy(t *testing.T) {
	s := NewServer(Config{})
	defer s.Close()

	agent := NewAgent("agent://support-bot")
	s.RegisterAgent(agent, "tickets.read")

	_, err := exchangeFor(t, s, agent, "tickets.read", "tickets.write")
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *auth.Error", err)
	}
	if authErr.Kind != auth.KindPolicyDenied || authErr.Scope != "tickets.write" {
		t.Errorf("error = %+v", authErr)
	}
	if len(s.Exchanges()) != 0 {
		t.Error("denied request recorded as an exchange")
	}
}

func TestServer_UnknownAgent(t *testing.T) {
	s := NewServer(Config{})
	defer s.Close()

	_, err := exchangeFor(t, s, NewAgent("agent://stranger"), "tickets.read")
	if auth.KindOf(err) != auth.KindExchangeRejected {
		t.Errorf("kind = %s, want ExchangeRejected", auth.KindOf(err))
	}
}

func TestServer_FailNext(t *testing.T) {
	s := NewServer(Config{})
	defer s.Close()

	agent := NewAgent("agent://support-bot")
	s.RegisterAgent(agent, "tickets.read")
	s.FailNext(http.StatusServiceUnavailable)

	_, err := exchangeFor(t, s, agent, "tickets.read")
	if !auth.IsTransient(err) {
		t.Errorf("error = %v, want transient", err)
	}
	if _, err := exchangeFor(t, s, agent, "tickets.read"); err != nil {
		t.Errorf("second exchange error = %v", err)
	}
	if s.Requests() != 2 {
		t.Errorf("Requests() = %d, want 2", s.Requests())
	}
}

func TestServer_AgentJWKS(t *testing.T) {
	s := NewServer(Config{})
	defer s.Close()

	agent := NewAgent("agent://support-bot")
	s.RegisterAgent(agent)

	resp, err := s.Client().Get(s.AgentJWKSURL())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var doc keys.JWKS
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0].Kid != agent.KeyID {
		t.Errorf("agent JWKS = %+v", doc)
	}
}
