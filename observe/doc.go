// Package observe provides logging, tracing and metrics for agent
// authorization operations: assertion signing, token exchange, cache
// lookups and token verification.
//
// It is instrumentation only. Components accept a Logger and an optional
// Middleware; the service package builds both from an Observer.
package observe
