package auth

import (
	"context"
	"sync"
)

// Authorizer decides whether a verified agent may proceed. Tools use it for
// checks beyond token validity, such as allow-lists.
type Authorizer interface {
	// Authorize returns nil if agentID is permitted.
	Authorize(ctx context.Context, agentID string) error

	// Name returns a unique identifier for this authorizer.
	Name() string
}

// AllowList permits a fixed set of agent identifiers.
type AllowList struct {
	mu     sync.RWMutex
	agents map[string]struct{}
}

// NewAllowList creates an allow-list of the given agents.
func NewAllowList(agentIDs ...string) *AllowList {
	a := &AllowList{agents: make(map[string]struct{}, len(agentIDs))}
	for _, id := range agentIDs {
		a.agents[id] = struct{}{}
	}
	return a
}

// Allow adds agentID to the list.
func (a *AllowList) Allow(agentID string) {
	a.mu.Lock()
	a.agents[agentID] = struct{}{}
	a.mu.Unlock()
}

// Revoke removes agentID from the list.
func (a *AllowList) Revoke(agentID string) {
	a.mu.Lock()
	delete(a.agents, agentID)
	a.mu.Unlock()
}

// Authorize fails with ErrPolicyDenied for agents not on the list.
func (a *AllowList) Authorize(_ context.Context, agentID string) error {
	a.mu.RLock()
	_, ok := a.agents[agentID]
	a.mu.RUnlock()
	if !ok || agentID == "" {
		return newError(KindPolicyDenied, "agent "+quote(agentID)+" is not allowed", nil)
	}
	return nil
}

// Name returns "allow_list".
func (a *AllowList) Name() string {
	return "allow_list"
}

// AllowAll permits every verified agent.
type AllowAll struct{}

// Authorize always returns nil.
func (AllowAll) Authorize(context.Context, string) error { return nil }

// Name returns "allow_all".
func (AllowAll) Name() string { return "allow_all" }

// AuthorizerFunc is an adapter to allow use of ordinary functions as Authorizers.
type AuthorizerFunc func(ctx context.Context, agentID string) error

// Authorize calls the function.
func (f AuthorizerFunc) Authorize(ctx context.Context, agentID string) error {
	return f(ctx, agentID)
}

// Name returns "func".
func (f AuthorizerFunc) Name() string {
	return "func"
}

var (
	_ Authorizer = (*AllowList)(nil)
	_ Authorizer = AllowAll{}
	_ Authorizer = AuthorizerFunc(nil)
)
