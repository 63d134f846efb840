// Package service wires agentauth components from a config.Config.
//
// A Service owns the process-scoped state: one replay table shared by every
// verifier, the agent's token cache, the key sets fetched from key
// distribution endpoints, and the telemetry providers. It exposes health
// and metrics over HTTP and runs the periodic sweepers that keep the
// in-memory tables bounded.
//
// Usage:
//
//	cfg, err := config.Load("agentauth.yaml")
//	svc, err := service.New(ctx, cfg)
//	defer svc.Close(ctx)
//	mux.Handle("POST /tickets", svc.Protect("tickets", "tickets.write", createTicket))
//	go svc.Run(ctx)
package service
