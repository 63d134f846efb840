package exchange

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/keys"
)

const tokenService = "https://token.local/exchange"

func newMaterial(t *testing.T, kid, agentID string) *keys.Material {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	m, err := keys.New(kid, agentID, private)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSigner_Sign(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := newMaterial(t, "agent-key-1", "agent://support-bot")
	s := NewSigner(WithSignerClock(func() time.Time { return now }))

	a, err := s.Sign(m, tokenService)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if a.Issuer != "agent://support-bot" || a.Subject != a.Issuer {
		t.Errorf("iss/sub = %q/%q", a.Issuer, a.Subject)
	}
	if a.ExpiresAt.Sub(a.IssuedAt) != 60*time.Second {
		t.Errorf("lifetime = %v, want 60s", a.ExpiresAt.Sub(a.IssuedAt))
	}

	claims := &auth.AssertionClaims{}
	token, err := jwt.ParseWithClaims(a.Raw, claims, func(*jwt.Token) (any, error) {
		return m.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("signed assertion does not verify: %v", err)
	}
	if token.Header["alg"] != "EdDSA" || token.Header["kid"] != "agent-key-1" {
		t.Errorf("header = %v", token.Header)
	}
	if claims.ID != a.JWTID || claims.ID == "" {
		t.Errorf("jti = %q, assertion jti = %q", claims.ID, a.JWTID)
	}
	if claims.ExpiresAt.Unix()-claims.IssuedAt.Unix() != 60 {
		t.Errorf("exp - iat = %d", claims.ExpiresAt.Unix()-claims.IssuedAt.Unix())
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != tokenService {
		t.Errorf("aud = %v", claims.Audience)
	}
}

func TestSigner_FreshJTIPerCall(t *testing.T) {
	m := newMaterial(t, "agent-key-1", "agent://support-bot")
	s := NewSigner()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		a, err := s.Sign(m, tokenService)
		if err != nil {
			t.Fatal(err)
		}
		if seen[a.JWTID] {
			t.Fatalf("jti %q repeated", a.JWTID)
		}
		seen[a.JWTID] = true
	}
}

func TestSigner_Errors(t *testing.T) {
	s := NewSigner()
	withKid := newMaterial(t, "agent-key-1", "")
	noKid := newMaterial(t, "agent-key-1", "agent://a")
	noKid.KeyID = ""

	tests := []struct {
		name     string
		material *keys.Material
		audience string
		opts     []SignOption
		want     auth.Kind
	}{
		{"nil material", nil, tokenService, nil, auth.KindMissingKeyID},
		{"no kid", noKid, tokenService, nil, auth.KindMissingKeyID},
		{"no agent identifier", withKid, tokenService, nil, auth.KindMissingAgentIdentifier},
		{"empty audience", newMaterial(t, "k", "agent://a"), "", nil, auth.KindMissingAudience},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Sign(tt.material, tt.audience, tt.opts...)
			if got := auth.KindOf(err); got != tt.want {
				t.Fatalf("Sign() kind = %s, want %s (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestSigner_AgentIDOverride(t *testing.T) {
	m := newMaterial(t, "agent-key-1", "")
	a, err := NewSigner().Sign(m, tokenService, WithAgentID("agent://override"))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if a.Issuer != "agent://override" || a.Subject != "agent://override" {
		t.Errorf("iss/sub = %q/%q", a.Issuer, a.Subject)
	}
}

func TestSigner_VerifiesWithAssertionVerifier(t *testing.T) {
	m := newMaterial(t, "agent-key-1", "agent://support-bot")
	v, err := auth.NewAssertionVerifier(auth.AssertionVerifierConfig{
		Audience: tokenService,
		Keys:     auth.NewStaticKeyProvider().AddEd25519(m.KeyID, m.PublicKey),
	})
	if err != nil {
		t.Fatal(err)
	}

	a, err := NewSigner().Sign(m, tokenService)
	if err != nil {
		t.Fatal(err)
	}
	id, err := v.Verify(context.Background(), "Bearer "+a.Raw)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.AgentID != "agent://support-bot" || id.KeyID != "agent-key-1" {
		t.Errorf("identity = %+v", id)
	}
}
