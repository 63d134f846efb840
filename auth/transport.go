package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// RequireScope is HTTP middleware that admits only requests carrying a
// Token Service access token granting scope. The verified grant is
// available to next via GrantFromContext. Rejected requests never reach
// next.
//
// Usage:
//
//	mux.Handle("/tickets", auth.RequireScope(verifier, "tickets.write", createTicket))
func RequireScope(v *AccessTokenVerifier, scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grant, err := v.Verify(r.Context(), r.Header.Get("Authorization"), scope)
		if err != nil {
			WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithGrant(r.Context(), grant)))
	})
}

// RequireAssertion is HTTP middleware for endpoints that accept an agent's
// self-issued assertion. authz may be nil to admit any verified agent.
func RequireAssertion(v *AssertionVerifier, authz Authorizer, next http.Handler) http.Handler {
	if authz == nil {
		authz = AllowAll{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := v.Verify(r.Context(), r.Header.Get("Authorization"))
		if err == nil {
			err = authz.Authorize(r.Context(), id.AgentID)
		}
		if err != nil {
			WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAgentIdentity(r.Context(), id)))
	})
}

// StatusCode maps an error onto an HTTP status for a protected resource.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindInsufficientScope, KindPolicyDenied:
		return http.StatusForbidden
	case KindKeyServiceUnreachable:
		return http.StatusServiceUnavailable
	case KindUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// WriteError writes a bearer-token error response. The body carries only
// PublicMessage text, never the internal detail.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	code := "invalid_token"
	switch status {
	case http.StatusForbidden:
		code = "insufficient_scope"
		if KindOf(err) == KindPolicyDenied {
			code = "access_denied"
		}
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		code = "temporarily_unavailable"
	}
	if KindOf(err) == KindMissingBearerToken {
		w.Header().Set("WWW-Authenticate", "Bearer")
	} else {
		challenge := fmt.Sprintf("Bearer error=%q", code)
		var e *Error
		if errors.As(err, &e) && e.Scope != "" {
			challenge += fmt.Sprintf(", scope=%q", e.Scope)
		}
		w.Header().Set("WWW-Authenticate", challenge)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": PublicMessage(err),
	})
}
