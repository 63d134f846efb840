package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Unverified holds claims read from a token WITHOUT checking its signature.
// It exists for bookkeeping such as cache expiry and early rejection, and
// must never be the basis of an authorization decision.
type Unverified struct {
	Issuer    string
	Subject   string
	Audience  []string
	ExpiresAt time.Time
	JWTID     string
	KeyID     string
	Scopes    []string
}

// PeekUnverified decodes a JWT's header and claims without verifying it.
func PeekUnverified(raw string) (*Unverified, error) {
	claims := &AccessTokenClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, newError(KindMalformedToken, "undecodable token", err)
	}

	u := &Unverified{
		Issuer:   claims.Issuer,
		Subject:  claims.Subject,
		Audience: claims.Audience,
		JWTID:    claims.ID,
		Scopes:   claims.ScopeList(),
	}
	if claims.ExpiresAt != nil {
		u.ExpiresAt = claims.ExpiresAt.Time
	}
	if kid, ok := token.Header["kid"].(string); ok {
		u.KeyID = kid
	}
	return u, nil
}
