// Package agent is the caller side of the authorization pipeline.
//
// An Agent holds one signing identity and obtains access tokens for
// protected tools. A token request is served from cache when a fresh token
// covering the scopes exists. Otherwise the agent signs a new assertion,
// exchanges it at the Token Service and caches the result.
//
// Transient Token Service failures are retried with backoff behind a circuit
// breaker. Policy denials and security rejections are returned at once.
//
// Usage:
//
//	a, err := agent.New(agent.Config{Key: material, TokenService: client})
//	token, err := a.Token(ctx, "https://tools.local/tickets", "tickets.read")
//	req.Header.Set("Authorization", token.BearerHeader())
package agent
