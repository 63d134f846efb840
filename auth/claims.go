package auth

import (
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AssertionLifetime is how long a self-issued client assertion is valid.
const AssertionLifetime = 60 * time.Second

// AssertionClaims is the claim set of a self-issued client assertion.
// Issuer and Subject both name the agent.
type AssertionClaims struct {
	jwt.RegisteredClaims
}

// AccessTokenClaims is the claim set of a Token Service access token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims

	// Scopes is the granted scope list.
	Scopes []string `json:"scopes,omitempty"`

	// Scope is the space-separated OAuth2 form, read when Scopes is absent.
	Scope string `json:"scope,omitempty"`
}

// ScopeList returns the granted scopes, preferring the array form.
func (c *AccessTokenClaims) ScopeList() []string {
	if len(c.Scopes) > 0 {
		return c.Scopes
	}
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// ClientAssertion is a signed, serialized self-issued assertion. It is
// created per exchange attempt and discarded after use.
type ClientAssertion struct {
	Raw       string
	KeyID     string
	Issuer    string
	Subject   string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	JWTID     string
}

// AccessToken is a Token Service access token held by an agent.
type AccessToken struct {
	// Raw is the serialized JWT presented as a bearer credential.
	Raw string

	Issuer    string
	Subject   string
	Audience  string
	ExpiresAt time.Time
	JWTID     string
	Scopes    []string
}

// Covers reports whether the token's scopes include every required scope.
func (t *AccessToken) Covers(required []string) bool {
	return CoversScopes(t.Scopes, required)
}

// BearerHeader returns the Authorization header value for t.
func (t *AccessToken) BearerHeader() string {
	return "Bearer " + t.Raw
}

// CoversScopes reports whether granted includes every scope in required.
func CoversScopes(granted, required []string) bool {
	for _, s := range required {
		if !slices.Contains(granted, s) {
			return false
		}
	}
	return true
}
