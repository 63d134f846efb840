package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/agentauth/observe"
)

// AssertionVerifierConfig configures an AssertionVerifier.
type AssertionVerifierConfig struct {
	// Audience is the identifier assertions must be addressed to. Required.
	Audience string

	// Keys resolves agent public keys by kid. Required.
	Keys KeyProvider

	// Replay is the shared replay table. If nil, the verifier keeps its own.
	Replay ReplayGuard

	// MaxLifetime caps exp - iat.
	// Default: AssertionLifetime (60 seconds)
	MaxLifetime time.Duration

	// Clock overrides the time source.
	Clock func() time.Time

	// Logger receives rejection events. Default: no-op.
	Logger observe.Logger
}

// AssertionVerifier validates self-issued agent assertions: an agent
// presenting its own signed identity rather than a service-issued token.
type AssertionVerifier struct {
	verifier
	audience    string
	maxLifetime time.Duration
}

// NewAssertionVerifier creates an assertion verifier.
func NewAssertionVerifier(config AssertionVerifierConfig) (*AssertionVerifier, error) {
	if config.Audience == "" {
		return nil, errors.New("auth: assertion verifier requires an audience")
	}
	if config.Keys == nil {
		return nil, errors.New("auth: assertion verifier requires a key provider")
	}
	if config.MaxLifetime <= 0 {
		config.MaxLifetime = AssertionLifetime
	}

	return &AssertionVerifier{
		verifier:    newVerifier(config.Keys, config.Replay, config.Clock, config.Logger, []string{jwt.SigningMethodEdDSA.Alg()}),
		audience:    config.Audience,
		maxLifetime: config.MaxLifetime,
	}, nil
}

// Audience returns the audience this verifier accepts.
func (v *AssertionVerifier) Audience() string {
	return v.audience
}

// Verify validates the assertion carried in an Authorization header.
func (v *AssertionVerifier) Verify(ctx context.Context, bearerHeader string) (*AgentIdentity, error) {
	raw, err := ParseBearer(bearerHeader)
	if err != nil {
		return nil, v.reject(ctx, "verify_assertion", err)
	}
	id, err := v.VerifyToken(ctx, raw)
	if err != nil {
		return nil, v.reject(ctx, "verify_assertion", err)
	}
	return id, nil
}

// VerifyToken validates a serialized assertion. A successful call consumes
// the assertion's jti; a second call with the same assertion fails with
// ErrReplayDetected.
func (v *AssertionVerifier) VerifyToken(ctx context.Context, raw string) (*AgentIdentity, error) {
	claims := &AssertionClaims{}
	token, err := v.parse(ctx, raw, claims, jwt.WithAudience(v.audience))
	if err != nil {
		return nil, err
	}

	if claims.Issuer == "" || claims.Subject == "" {
		return nil, newError(KindMissingRequiredClaims, "iss and sub are required", nil)
	}
	if claims.Issuer != claims.Subject {
		return nil, newError(KindIssuerSubjectMismatch, "assertion must be self-issued", nil)
	}
	if claims.ID == "" {
		return nil, newError(KindMissingRequiredClaims, "jti is required", nil)
	}

	if claims.IssuedAt == nil {
		return nil, newError(KindMissingRequiredClaims, "iat is required", nil)
	}

	// Both bounds hold: a backdated iat cannot stretch the remaining window.
	expiresAt := claims.ExpiresAt.Time
	if expiresAt.Sub(claims.IssuedAt.Time) > v.maxLifetime || expiresAt.Sub(v.now()) > v.maxLifetime {
		return nil, newError(KindMalformedToken, "assertion lifetime exceeds "+v.maxLifetime.String(), nil)
	}

	if !v.replay.Record(claims.ID, expiresAt) {
		return nil, newError(KindReplayDetected, "assertion jti already consumed", nil)
	}

	return &AgentIdentity{
		AgentID:   claims.Subject,
		KeyID:     keyID(token),
		JWTID:     claims.ID,
		ExpiresAt: expiresAt,
	}, nil
}
