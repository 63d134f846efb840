package agent

import (
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that attaches an access token for one
// audience and scope set to every request.
//
// When the tool answers 401 the cached token is dropped and the request is
// sent once more with a fresh token, provided its body can be replayed.
type Transport struct {
	Agent    *Agent
	Audience string
	Scopes   []string

	// Base is the underlying transport. Default: http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.GetBody != nil && req.Body != nil {
		// Each attempt sends its own copy from GetBody.
		defer func() { _ = req.Body.Close() }()
	}

	resp, err := t.send(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
	t.Agent.Invalidate(t.Audience, t.Scopes...)
	return t.send(req)
}

func (t *Transport) send(req *http.Request) (*http.Response, error) {
	token, err := t.Agent.Token(req.Context(), t.Audience, t.Scopes...)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	out.Header.Set("Authorization", token.BearerHeader())
	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// Client returns an HTTP client that authorizes requests to audience with
// scopes.
func (a *Agent) Client(audience string, scopes ...string) *http.Client {
	return &http.Client{Transport: &Transport{Agent: a, Audience: audience, Scopes: scopes}}
}
