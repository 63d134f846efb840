package exchange

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/keys"
)

// Signer builds and signs client assertions.
type Signer struct {
	now      func() time.Time
	lifetime time.Duration
	newID    func() string
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithSignerClock overrides the time source.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides jti generation.
func WithIDGenerator(fn func() string) SignerOption {
	return func(s *Signer) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewSigner creates a Signer issuing assertions valid for
// auth.AssertionLifetime.
func NewSigner(opts ...SignerOption) *Signer {
	s := &Signer{
		now:      time.Now,
		lifetime: auth.AssertionLifetime,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type signConfig struct {
	agentID string
}

// SignOption adjusts a single Sign call.
type SignOption func(*signConfig)

// WithAgentID overrides the agent identifier carried by the key material.
func WithAgentID(agentID string) SignOption {
	return func(c *signConfig) {
		c.agentID = agentID
	}
}

// Sign builds an assertion addressed to audience, valid for sixty seconds
// from now and carrying a fresh random jti.
func (s *Signer) Sign(m *keys.Material, audience string, opts ...SignOption) (*auth.ClientAssertion, error) {
	if m == nil || len(m.PrivateKey) == 0 {
		return nil, auth.NewError(auth.KindMissingKeyID, "no key material", keys.ErrNoPrivateKey)
	}
	if m.KeyID == "" {
		return nil, auth.NewError(auth.KindMissingKeyID, "key material has no kid", nil)
	}

	cfg := signConfig{agentID: m.AgentID}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.agentID == "" {
		return nil, auth.NewError(auth.KindMissingAgentIdentifier, "no agent identifier in key material or options", nil)
	}
	if audience == "" {
		return nil, auth.NewError(auth.KindMissingAudience, "assertion audience is empty", nil)
	}

	issuedAt := s.now().Truncate(time.Second)
	a := &auth.ClientAssertion{
		KeyID:     m.KeyID,
		Issuer:    cfg.agentID,
		Subject:   cfg.agentID,
		Audience:  audience,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.lifetime),
		JWTID:     s.newID(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, &auth.AssertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.Issuer,
			Subject:   a.Subject,
			Audience:  jwt.ClaimStrings{a.Audience},
			IssuedAt:  jwt.NewNumericDate(a.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(a.ExpiresAt),
			ID:        a.JWTID,
		},
	})
	token.Header["kid"] = m.KeyID

	raw, err := token.SignedString(m.PrivateKey)
	if err != nil {
		return nil, auth.NewError(auth.KindMalformedToken, "sign assertion", err)
	}
	a.Raw = raw
	return a, nil
}
