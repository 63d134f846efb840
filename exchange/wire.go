package exchange

// GrantTypeJWTBearer is the RFC 7523 grant type carried by every exchange
// request.
const GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// Error codes a Token Service uses to deny a request on policy grounds.
const (
	ErrorAccessDenied      = "access_denied"
	ErrorPolicyDenied      = "policy_denied"
	ErrorInsufficientScope = "insufficient_scope"
	ErrorInvalidGrant      = "invalid_grant"
	ErrorInvalidRequest    = "invalid_request"
)

// Request is the JSON body of a token exchange. The assertion travels in
// the Authorization header.
type Request struct {
	GrantType string   `json:"grant_type"`
	Audience  string   `json:"audience"`
	Scopes    []string `json:"scopes"`
}

// Response is a successful token exchange.
type Response struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type,omitempty"`
	ExpiresIn   int64    `json:"expires_in"`
	Scopes      []string `json:"scopes,omitempty"`
}

// ErrorResponse is the body of a refused exchange. Scope and Agent name
// the denied scope and agent when the refusal is a policy decision.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Scope            string `json:"scope,omitempty"`
	Agent            string `json:"agent,omitempty"`
}

func isPolicyError(code string) bool {
	switch code {
	case ErrorAccessDenied, ErrorPolicyDenied, ErrorInsufficientScope:
		return true
	}
	return false
}
