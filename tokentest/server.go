// Package tokentest provides an in-process Token Service for tests.
//
// A Server verifies agent assertions with auth.AssertionVerifier, applies a
// per-agent scope policy, and issues Ed25519-signed access tokens. It
// publishes its own signing key at /.well-known/jwks.json and the agent keys
// it trusts at /agents/jwks.json.
package tokentest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/exchange"
	"github.com/jonwraymond/agentauth/keys"
	"github.com/jonwraymond/agentauth/replay"
)

// Paths served by Server.
const (
	TokenPath     = "/token"
	JWKSPath      = "/.well-known/jwks.json"
	AgentJWKSPath = "/agents/jwks.json"
)

// Config configures a Server.
type Config struct {
	// Lifetime of issued access tokens.
	// Default: 300 seconds
	Lifetime time.Duration

	// Clock overrides the time source for verification and issuance.
	Clock func() time.Time
}

// Exchange records one accepted exchange.
type Exchange struct {
	AgentID  string
	Audience string
	Scopes   []string
	TokenID  string
}

// Server is a fake Token Service.
type Server struct {
	srv      *httptest.Server
	key      *keys.Material
	agents   *auth.StaticKeyProvider
	verifier *auth.AssertionVerifier
	lifetime time.Duration
	now      func() time.Time

	mu        sync.Mutex
	policy    map[string][]string
	agentJWKS keys.JWKS
	exchanges []Exchange
	failNext  []int

	requests atomic.Int64
}

// NewServer starts a Server. Call Close when done.
func NewServer(config Config) *Server {
	if config.Lifetime <= 0 {
		config.Lifetime = 300 * time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic("tokentest: generate key: " + err.Error())
	}
	key, _ := keys.New("token-service-1", "", private)

	s := &Server{
		key:      key,
		agents:   auth.NewStaticKeyProvider(),
		lifetime: config.Lifetime,
		now:      config.Clock,
		policy:   make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+TokenPath, s.handleToken)
	mux.HandleFunc("GET "+JWKSPath, s.handleJWKS)
	mux.HandleFunc("GET "+AgentJWKSPath, s.handleAgentJWKS)
	s.srv = httptest.NewServer(mux)

	s.verifier, err = auth.NewAssertionVerifier(auth.AssertionVerifierConfig{
		Audience: s.TokenURL(),
		Keys:     s.agents,
		Replay:   replay.NewGuard(replay.WithClock(config.Clock)),
		Clock:    config.Clock,
	})
	if err != nil {
		panic("tokentest: " + err.Error())
	}
	return s
}

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// URL is the server base URL, which is also the issuer of its tokens.
func (s *Server) URL() string { return s.srv.URL }

// Issuer returns the iss claim of issued tokens.
func (s *Server) Issuer() string { return s.srv.URL }

// TokenURL is the exchange endpoint and the audience assertions must name.
func (s *Server) TokenURL() string { return s.srv.URL + TokenPath }

// JWKSURL is where tools fetch the token-signing key.
func (s *Server) JWKSURL() string { return s.srv.URL + JWKSPath }

// AgentJWKSURL is where the public keys of registered agents are published.
func (s *Server) AgentJWKSURL() string { return s.srv.URL + AgentJWKSPath }

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client { return s.srv.Client() }

// SigningKey returns the token-signing key material.
func (s *Server) SigningKey() *keys.Material { return s.key }

// RegisterAgent trusts m's public key and allows the agent the given scopes.
func (s *Server) RegisterAgent(m *keys.Material, scopes ...string) {
	s.agents.AddEd25519(m.KeyID, m.PublicKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy[m.AgentID] = slices.Clone(scopes)
	s.agentJWKS.Keys = append(s.agentJWKS.Keys, m.PublicJWK())
}

// FailNext makes the next len(statuses) exchange requests answer with those
// HTTP statuses before doing any verification.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	s.failNext = append(s.failNext, statuses...)
	s.mu.Unlock()
}

// Exchanges returns the accepted exchanges in order.
func (s *Server) Exchanges() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.exchanges)
}

// Requests returns the number of exchange requests received, accepted or not.
func (s *Server) Requests() int { return int(s.requests.Load()) }

// Issue mints an access token directly, bypassing exchange.
func (s *Server) Issue(agentID, audience string, scopes ...string) string {
	raw, _ := s.issue(agentID, audience, scopes)
	return raw
}

func (s *Server) issue(agentID, audience string, scopes []string) (string, string) {
	now := s.now().Truncate(time.Second)
	jti := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, &auth.AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer(),
			Subject:   agentID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        jti,
		},
		Scopes: scopes,
	})
	token.Header["kid"] = s.key.KeyID
	raw, err := token.SignedString(s.key.PrivateKey)
	if err != nil {
		panic("tokentest: sign: " + err.Error())
	}
	return raw, jti
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	var injected int
	if len(s.failNext) > 0 {
		injected, s.failNext = s.failNext[0], s.failNext[1:]
	}
	s.mu.Unlock()
	if injected != 0 {
		writeError(w, injected, exchange.ErrorResponse{Error: "temporarily_unavailable"})
		return
	}

	identity, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, exchange.ErrorResponse{
			Error:            exchange.ErrorInvalidGrant,
			ErrorDescription: auth.PublicMessage(err),
		})
		return
	}

	var req exchange.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GrantType != exchange.GrantTypeJWTBearer || req.Audience == "" {
		writeError(w, http.StatusBadRequest, exchange.ErrorResponse{Error: exchange.ErrorInvalidRequest})
		return
	}

	s.mu.Lock()
	allowed, known := s.policy[identity.AgentID]
	s.mu.Unlock()
	if !known {
		writeError(w, http.StatusForbidden, exchange.ErrorResponse{Error: exchange.ErrorAccessDenied, Agent: identity.AgentID})
		return
	}
	for _, scope := range req.Scopes {
		if !slices.Contains(allowed, scope) {
			writeError(w, http.StatusForbidden, exchange.ErrorResponse{
				Error:            exchange.ErrorInsufficientScope,
				ErrorDescription: "scope not granted to agent",
				Scope:            scope,
				Agent:            identity.AgentID,
			})
			return
		}
	}

	raw, jti := s.issue(identity.AgentID, req.Audience, req.Scopes)
	s.mu.Lock()
	s.exchanges = append(s.exchanges, Exchange{
		AgentID:  identity.AgentID,
		Audience: req.Audience,
		Scopes:   slices.Clone(req.Scopes),
		TokenID:  jti,
	})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, exchange.Response{
		AccessToken: raw,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.lifetime / time.Second),
		Scopes:      req.Scopes,
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, keys.JWKS{Keys: []keys.JWK{s.key.PublicJWK()}})
}

func (s *Server) handleAgentJWKS(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	doc := keys.JWKS{Keys: slices.Clone(s.agentJWKS.Keys)}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, doc)
}

func writeError(w http.ResponseWriter, status int, body exchange.ErrorResponse) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewAgent generates key material for agentID with a random kid.
func NewAgent(agentID string) *keys.Material {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic("tokentest: generate key: " + err.Error())
	}
	m, _ := keys.New("agent-"+uuid.NewString()[:8], agentID, private)
	return m
}
