package service

import (
	"context"
	"net/http"

	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/observe"
)

// Protect guards next with the named resource's verifier. For an access
// token resource the token must grant scope; for an assertion resource
// scope is ignored and the agent must pass the resource's allow-list.
// Rejected requests never reach next.
func (s *Service) Protect(name, scope string, next http.Handler) http.Handler {
	r, ok := s.resources[name]
	if !ok {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			s.logger.Error(context.Background(), "request for unconfigured resource", observe.Field{Key: "resource", Value: name})
			auth.WriteError(w, auth.NewError(auth.KindUnknown, "resource not configured", ErrUnknownResource))
		})
	}
	if r.assertion != nil {
		return s.protectAssertion(r, next)
	}
	return s.protectAccess(r, scope, next)
}

func (s *Service) protectAccess(r *resource, scope string, next http.Handler) http.Handler {
	op := observe.Op{Component: "verifier", Name: "verify_access", Audience: r.access.Audience()}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var grant *auth.AccessGrant
		err := s.mw.Run(req.Context(), op, func(ctx context.Context) error {
			var err error
			grant, err = r.access.Verify(ctx, req.Header.Get("Authorization"), scope)
			if err == nil {
				err = r.authz.Authorize(ctx, grant.AgentID)
			}
			return err
		})
		if err != nil {
			auth.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, req.WithContext(auth.WithGrant(req.Context(), grant)))
	})
}

func (s *Service) protectAssertion(r *resource, next http.Handler) http.Handler {
	op := observe.Op{Component: "verifier", Name: "verify_assertion", Audience: r.assertion.Audience()}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var id *auth.AgentIdentity
		err := s.mw.Run(req.Context(), op, func(ctx context.Context) error {
			var err error
			id, err = r.assertion.Verify(ctx, req.Header.Get("Authorization"))
			if err == nil {
				err = r.authz.Authorize(ctx, id.AgentID)
			}
			return err
		})
		if err != nil {
			auth.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, req.WithContext(auth.WithAgentIdentity(req.Context(), id)))
	})
}
