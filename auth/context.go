package auth

import (
	"context"
)

type contextKey int

const (
	grantKey contextKey = iota
	identityKey
)

// WithGrant returns a new context carrying a verified access grant.
func WithGrant(ctx context.Context, grant *AccessGrant) context.Context {
	return context.WithValue(ctx, grantKey, grant)
}

// GrantFromContext returns the verified access grant, or nil.
func GrantFromContext(ctx context.Context) *AccessGrant {
	g, _ := ctx.Value(grantKey).(*AccessGrant)
	return g
}

// WithAgentIdentity returns a new context carrying a verified agent identity.
func WithAgentIdentity(ctx context.Context, id *AgentIdentity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// AgentIdentityFromContext returns the verified agent identity, or nil.
func AgentIdentityFromContext(ctx context.Context) *AgentIdentity {
	id, _ := ctx.Value(identityKey).(*AgentIdentity)
	return id
}

// AgentIDFromContext returns the verified agent identifier from either a
// grant or a self-issued identity. It returns "" if neither is present.
func AgentIDFromContext(ctx context.Context) string {
	if g := GrantFromContext(ctx); g != nil {
		return g.AgentID
	}
	if id := AgentIdentityFromContext(ctx); id != nil {
		return id.AgentID
	}
	return ""
}
