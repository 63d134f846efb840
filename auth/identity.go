package auth

import (
	"slices"
	"time"
)

// AgentIdentity is the result of verifying a self-issued assertion.
type AgentIdentity struct {
	// AgentID is the verified agent identifier (iss == sub).
	AgentID string

	// KeyID is the key that verified the signature.
	KeyID string

	JWTID     string
	ExpiresAt time.Time
}

// AccessGrant is the result of verifying a Token Service access token.
type AccessGrant struct {
	// AgentID is the agent the Token Service vouches for (sub).
	AgentID string

	// Issuer is the Token Service identity (iss).
	Issuer string

	Audience  []string
	Scopes    []string
	KeyID     string
	JWTID     string
	ExpiresAt time.Time
}

// HasScope checks if the grant includes scope.
func (g *AccessGrant) HasScope(scope string) bool {
	return slices.Contains(g.Scopes, scope)
}

// IsExpired checks if the grant has expired.
func (g *AccessGrant) IsExpired() bool {
	if g.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(g.ExpiresAt)
}
