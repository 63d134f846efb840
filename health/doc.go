// Package health reports whether an agent or a protected tool can do its
// authorization work: the key-distribution endpoint and Token Service are
// reachable, and the replay table and token cache stay within bounds.
//
// Each checker belongs to a Component of the token pipeline. Checkers are
// registered on an Aggregator, which runs them in parallel under one
// deadline and can roll results up per component. The HTTP handlers expose the usual probes:
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg) // /healthz, /readyz, /health
package health
