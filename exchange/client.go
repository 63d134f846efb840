package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonwraymond/agentauth/auth"
)

const (
	maxResponseBytes = 1 << 20
	maxDetailBytes   = 200
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Endpoint is the Token Service exchange URL. Required.
	Endpoint string

	// Timeout bounds a single exchange round trip.
	// Default: 5 seconds
	Timeout time.Duration

	// HTTPClient is the HTTP client to use. If nil, a default client is used.
	HTTPClient *http.Client

	// Clock is used to derive expiry from expires_in when the token itself
	// carries no exp.
	Clock func() time.Time
}

// Client submits signed assertions to the Token Service.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: Exchange honors cancellation and the configured Timeout.
// - Errors: every failure is an *auth.Error of kind TokenServiceUnreachable,
//   PolicyDenied or ExchangeRejected. No retries are made.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates an exchange client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, errors.New("exchange: token service endpoint is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{config: config, httpClient: httpClient}, nil
}

// Endpoint returns the Token Service URL.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// Exchange presents assertion to the Token Service and requests an access
// token for audience limited to scopes.
func (c *Client) Exchange(ctx context.Context, assertion, audience string, scopes []string) (*auth.AccessToken, error) {
	if scopes == nil {
		scopes = []string{}
	}
	body, err := json.Marshal(Request{
		GrantType: GrantTypeJWTBearer,
		Audience:  audience,
		Scopes:    scopes,
	})
	if err != nil {
		return nil, auth.NewError(auth.KindExchangeRejected, "encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, auth.NewError(auth.KindTokenServiceUnreachable, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+assertion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, auth.NewError(auth.KindTokenServiceUnreachable, "token service request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, auth.NewError(auth.KindTokenServiceUnreachable, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejection(resp.StatusCode, data)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &auth.Error{Kind: auth.KindExchangeRejected, Status: resp.StatusCode, Detail: "undecodable response", Err: err}
	}
	if out.AccessToken == "" {
		return nil, &auth.Error{Kind: auth.KindExchangeRejected, Status: resp.StatusCode, Detail: "response has no access_token"}
	}

	// Fields come from an untrusted peek; the token is verified by the
	// tool it is presented to, not here.
	peek, err := auth.PeekUnverified(out.AccessToken)
	if err != nil {
		return nil, &auth.Error{Kind: auth.KindExchangeRejected, Status: resp.StatusCode, Detail: "access_token is not a JWT", Err: err}
	}
	return c.accessToken(&out, peek, audience), nil
}

func (c *Client) accessToken(out *Response, peek *auth.Unverified, audience string) *auth.AccessToken {
	token := &auth.AccessToken{
		Raw:       out.AccessToken,
		Issuer:    peek.Issuer,
		Subject:   peek.Subject,
		Audience:  audience,
		ExpiresAt: peek.ExpiresAt,
		JWTID:     peek.JWTID,
		Scopes:    peek.Scopes,
	}
	if token.ExpiresAt.IsZero() && out.ExpiresIn > 0 {
		token.ExpiresAt = c.config.Clock().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	if len(token.Scopes) == 0 {
		token.Scopes = out.Scopes
	}
	return token
}

// rejection maps a non-2xx response onto PolicyDenied or ExchangeRejected.
func rejection(status int, data []byte) error {
	var body ErrorResponse
	_ = json.Unmarshal(data, &body)

	detail := body.ErrorDescription
	if detail == "" {
		detail = body.Error
	}
	if detail == "" {
		detail = truncateDetail(strings.TrimSpace(string(data)))
	}
	if body.Agent != "" {
		detail = fmt.Sprintf("%s (agent %s)", detail, body.Agent)
	}

	kind := auth.KindExchangeRejected
	if status == http.StatusForbidden || isPolicyError(body.Error) {
		kind = auth.KindPolicyDenied
	}
	return &auth.Error{
		Kind:   kind,
		Detail: detail,
		Scope:  body.Scope,
		Status: status,
	}
}

// truncateDetail cuts s to at most maxDetailBytes without splitting a rune.
func truncateDetail(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= maxDetailBytes {
		return s
	}
	cut := maxDetailBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
