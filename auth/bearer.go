package auth

import "strings"

// ParseBearer extracts the token from an Authorization header value. The
// "Bearer" scheme is matched case-insensitively.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", newError(KindMissingBearerToken, "no authorization header", nil)
	}

	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", newError(KindMissingBearerToken, "authorization scheme is not Bearer", nil)
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", newError(KindMissingBearerToken, "empty bearer token", nil)
	}
	return token, nil
}
