package auth

import (
	"context"
	"testing"
)

func TestContext_Empty(t *testing.T) {
	ctx := context.Background()
	if GrantFromContext(ctx) != nil {
		t.Error("GrantFromContext on empty context should be nil")
	}
	if AgentIdentityFromContext(ctx) != nil {
		t.Error("AgentIdentityFromContext on empty context should be nil")
	}
	if id := AgentIDFromContext(ctx); id != "" {
		t.Errorf("AgentIDFromContext = %q, want empty", id)
	}
}

func TestContext_Grant(t *testing.T) {
	grant := &AccessGrant{AgentID: "agent://billing", Scopes: []string{"invoices.read"}}
	ctx := WithGrant(context.Background(), grant)

	if got := GrantFromContext(ctx); got != grant {
		t.Errorf("GrantFromContext = %v, want %v", got, grant)
	}
	if id := AgentIDFromContext(ctx); id != "agent://billing" {
		t.Errorf("AgentIDFromContext = %q", id)
	}
}

func TestContext_Identity(t *testing.T) {
	ident := &AgentIdentity{AgentID: "agent://support", KeyID: "k1"}
	ctx := WithAgentIdentity(context.Background(), ident)

	if got := AgentIdentityFromContext(ctx); got != ident {
		t.Errorf("AgentIdentityFromContext = %v, want %v", got, ident)
	}
	if id := AgentIDFromContext(ctx); id != "agent://support" {
		t.Errorf("AgentIDFromContext = %q", id)
	}
}

func TestContext_GrantWins(t *testing.T) {
	ctx := WithAgentIdentity(context.Background(), &AgentIdentity{AgentID: "agent://self"})
	ctx = WithGrant(ctx, &AccessGrant{AgentID: "agent://granted"})
	if id := AgentIDFromContext(ctx); id != "agent://granted" {
		t.Errorf("AgentIDFromContext = %q, want agent://granted", id)
	}
}
