package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/agentauth/observe"
	"github.com/jonwraymond/agentauth/replay"
)

// ReplayGuard is the replay table consulted by both verifiers. replay.Guard
// implements it.
type ReplayGuard interface {
	// Record consumes a one-time jti. It returns false on replay.
	Record(jwtID string, expiresAt time.Time) bool

	// Bind accepts repeated presentations of the same token and rejects a
	// different token carrying a live jti.
	Bind(jwtID, fingerprint string, expiresAt time.Time) bool
}

// verifier holds what both verifiers share: key resolution, the replay
// table, a clock and a logger.
type verifier struct {
	keys    KeyProvider
	replay  ReplayGuard
	now     func() time.Time
	logger  observe.Logger
	methods []string
}

func newVerifier(keys KeyProvider, guard ReplayGuard, clock func() time.Time, logger observe.Logger, methods []string) verifier {
	if guard == nil {
		guard = replay.NewGuard(replay.WithClock(clock))
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return verifier{
		keys:    keys,
		replay:  guard,
		now:     clock,
		logger:  logger,
		methods: methods,
	}
}

// parse verifies raw's signature and registered claims into claims.
func (v *verifier) parse(ctx context.Context, raw string, claims jwt.Claims, opts ...jwt.ParserOption) (*jwt.Token, error) {
	opts = append([]jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}, opts...)

	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.GetKey(ctx, kid)
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !token.Valid {
		return nil, newError(KindSignatureInvalid, "token not valid", nil)
	}
	return token, nil
}

// reject logs a verification failure and returns err unchanged. Token
// material is never logged.
func (v *verifier) reject(ctx context.Context, op string, err error) error {
	kind := KindOf(err)
	fields := []observe.Field{
		{Key: "op", Value: op},
		{Key: "kind", Value: kind.String()},
	}
	if kind.SecurityEvent() {
		fields = append(fields, observe.Field{Key: "security_event", Value: true})
	}
	v.logger.Warn(ctx, "verification rejected", fields...)
	return err
}

// classifyJWTError maps golang-jwt errors onto the Kind taxonomy. Errors
// raised by the KeyProvider are already *Error and pass through.
func classifyJWTError(err error) error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(KindMalformedToken, "", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(KindSignatureInvalid, "", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return newError(KindMissingRequiredClaims, "", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(KindTokenExpired, "", err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return newError(KindAudienceMismatch, "", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return newError(KindUntrustedIssuer, "", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return newError(KindMalformedToken, "token not valid yet", err)
	default:
		return newError(KindMalformedToken, "", err)
	}
}

// fingerprint identifies a serialized token without retaining it.
func fingerprint(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

func keyID(token *jwt.Token) string {
	kid, _ := token.Header["kid"].(string)
	return kid
}
