package auth

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/agentauth/observe"
)

// AccessTokenVerifierConfig configures an AccessTokenVerifier.
type AccessTokenVerifierConfig struct {
	// Audience is the protected resource's identifier. Required.
	Audience string

	// Issuer is the trusted Token Service identity. Required.
	Issuer string

	// Keys resolves Token Service public keys by kid. Required.
	Keys KeyProvider

	// Replay is the shared replay table. If nil, the verifier keeps its own.
	Replay ReplayGuard

	// Methods lists accepted JWS algorithms.
	// Default: EdDSA, RS256
	Methods []string

	// Clock overrides the time source.
	Clock func() time.Time

	// Logger receives rejection events. Default: no-op.
	Logger observe.Logger
}

// AccessTokenVerifier validates Token Service access tokens presented to a
// protected tool: signature, audience, issuer, expiry and required scope.
type AccessTokenVerifier struct {
	verifier
	audience string
	issuer   string
}

// NewAccessTokenVerifier creates an access token verifier.
func NewAccessTokenVerifier(config AccessTokenVerifierConfig) (*AccessTokenVerifier, error) {
	if config.Audience == "" {
		return nil, errors.New("auth: access token verifier requires an audience")
	}
	if config.Issuer == "" {
		return nil, errors.New("auth: access token verifier requires a trusted issuer")
	}
	if config.Keys == nil {
		return nil, errors.New("auth: access token verifier requires a key provider")
	}
	if len(config.Methods) == 0 {
		config.Methods = []string{jwt.SigningMethodEdDSA.Alg(), jwt.SigningMethodRS256.Alg()}
	}

	return &AccessTokenVerifier{
		verifier: newVerifier(config.Keys, config.Replay, config.Clock, config.Logger, config.Methods),
		audience: config.Audience,
		issuer:   config.Issuer,
	}, nil
}

// Audience returns the audience this verifier accepts.
func (v *AccessTokenVerifier) Audience() string {
	return v.audience
}

// Verify validates the access token carried in an Authorization header and
// requires it to grant requiredScope. An empty requiredScope skips the
// scope check.
func (v *AccessTokenVerifier) Verify(ctx context.Context, bearerHeader string, requiredScope string) (*AccessGrant, error) {
	raw, err := ParseBearer(bearerHeader)
	if err != nil {
		return nil, v.reject(ctx, "verify_access", err)
	}
	grant, err := v.VerifyToken(ctx, raw, requiredScope)
	if err != nil {
		return nil, v.reject(ctx, "verify_access", err)
	}
	return grant, nil
}

// VerifyToken validates a serialized access token.
func (v *AccessTokenVerifier) VerifyToken(ctx context.Context, raw string, requiredScope string) (*AccessGrant, error) {
	// A token not minted by the Token Service is refused before any key
	// lookup, whatever else it carries. The full check below re-validates
	// the issuer against the verified claims.
	peek, err := PeekUnverified(raw)
	if err != nil {
		return nil, err
	}
	if peek.Issuer != v.issuer {
		return nil, newError(KindUntrustedIssuer, "issuer is not the token service", nil)
	}

	claims := &AccessTokenClaims{}
	token, err := v.parse(ctx, raw, claims,
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, newError(KindMissingRequiredClaims, "sub is required", nil)
	}
	if claims.ID == "" {
		return nil, newError(KindMissingRequiredClaims, "jti is required", nil)
	}

	scopes := claims.ScopeList()
	if requiredScope != "" && !slices.Contains(scopes, requiredScope) {
		return nil, &Error{
			Kind:   KindInsufficientScope,
			Scope:  requiredScope,
			Detail: "token does not grant required scope",
		}
	}

	expiresAt := claims.ExpiresAt.Time
	if !v.replay.Bind(claims.ID, fingerprint(raw), expiresAt) {
		return nil, newError(KindReplayDetected, "jti reused by a different token", nil)
	}

	return &AccessGrant{
		AgentID:   claims.Subject,
		Issuer:    claims.Issuer,
		Audience:  claims.Audience,
		Scopes:    scopes,
		KeyID:     keyID(token),
		JWTID:     claims.ID,
		ExpiresAt: expiresAt,
	}, nil
}
