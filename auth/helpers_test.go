package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testAgent       = "agent://support-bot"
	testTokenIssuer = "https://token.local"
	testToolAud     = "https://tools.local/tickets"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testKey struct {
	kid     string
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func newTestKey(t *testing.T, kid string) testKey {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return testKey{kid: kid, private: private, public: public}
}

func (k testKey) sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = k.kid
	raw, err := token.SignedString(k.private)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return raw
}

func assertionClaims(now time.Time, jti string) *AssertionClaims {
	return &AssertionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    testAgent,
		Subject:   testAgent,
		Audience:  jwt.ClaimStrings{testTokenIssuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AssertionLifetime)),
		ID:        jti,
	}}
}

func accessClaims(now time.Time, jti string, scopes ...string) *AccessTokenClaims {
	return &AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testTokenIssuer,
			Subject:   testAgent,
			Audience:  jwt.ClaimStrings{testToolAud},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(300 * time.Second)),
			ID:        jti,
		},
		Scopes: scopes,
	}
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, kind, err)
	}
}
