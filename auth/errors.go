package auth

import (
	"errors"
	"fmt"
)

// Kind classifies an authentication or token acquisition failure.
type Kind int

const (
	KindUnknown Kind = iota

	// Verification failures.
	KindMissingBearerToken
	KindMalformedToken
	KindSignatureInvalid
	KindKeyNotFound
	KindAudienceMismatch
	KindIssuerSubjectMismatch
	KindUntrustedIssuer
	KindMissingRequiredClaims
	KindTokenExpired
	KindReplayDetected
	KindInsufficientScope
	KindKeyServiceUnreachable

	// Token acquisition failures.
	KindTokenServiceUnreachable
	KindPolicyDenied
	KindExchangeRejected

	// Assertion construction failures.
	KindMissingKeyID
	KindMissingAgentIdentifier
	KindMissingAudience
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindMissingBearerToken:      "missing_bearer_token",
	KindMalformedToken:          "malformed_token",
	KindSignatureInvalid:        "signature_invalid",
	KindKeyNotFound:             "key_not_found",
	KindAudienceMismatch:        "audience_mismatch",
	KindIssuerSubjectMismatch:   "issuer_subject_mismatch",
	KindUntrustedIssuer:         "untrusted_issuer",
	KindMissingRequiredClaims:   "missing_required_claims",
	KindTokenExpired:            "token_expired",
	KindReplayDetected:          "replay_detected",
	KindInsufficientScope:       "insufficient_scope",
	KindKeyServiceUnreachable:   "key_service_unreachable",
	KindTokenServiceUnreachable: "token_service_unreachable",
	KindPolicyDenied:            "policy_denied",
	KindExchangeRejected:        "exchange_rejected",
	KindMissingKeyID:            "missing_key_id",
	KindMissingAgentIdentifier:  "missing_agent_identifier",
	KindMissingAudience:         "missing_audience",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// SecurityEvent reports whether failures of this kind indicate tampering or
// misuse. Their details must not be shown to untrusted callers.
func (k Kind) SecurityEvent() bool {
	switch k {
	case KindReplayDetected, KindSignatureInvalid, KindUntrustedIssuer, KindIssuerSubjectMismatch:
		return true
	}
	return false
}

// Transient reports whether failures of this kind are operational outages
// that may succeed on retry.
func (k Kind) Transient() bool {
	return k == KindTokenServiceUnreachable || k == KindKeyServiceUnreachable
}

// Error is the error type returned by every verifier, signer and exchange
// client in this module.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Detail is a human-readable explanation. It may name claims or the
	// remote service's error text and must not be shown to end users for
	// security events.
	Detail string

	// Scope names the missing or denied scope, if any.
	Scope string

	// Status is the HTTP status returned by a remote service, if any.
	Status int

	// Err is the underlying cause.
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := "auth: " + e.Kind.String()
	if e.Scope != "" {
		msg += fmt.Sprintf(" (scope %q)", e.Scope)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, ErrReplayDetected) matches any replay failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// NewError creates an *Error of the given kind.
func NewError(kind Kind, detail string, cause error) *Error {
	return newError(kind, detail, cause)
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrMissingBearerToken      = &Error{Kind: KindMissingBearerToken}
	ErrMalformedToken          = &Error{Kind: KindMalformedToken}
	ErrSignatureInvalid        = &Error{Kind: KindSignatureInvalid}
	ErrKeyNotFound             = &Error{Kind: KindKeyNotFound}
	ErrAudienceMismatch        = &Error{Kind: KindAudienceMismatch}
	ErrIssuerSubjectMismatch   = &Error{Kind: KindIssuerSubjectMismatch}
	ErrUntrustedIssuer         = &Error{Kind: KindUntrustedIssuer}
	ErrMissingRequiredClaims   = &Error{Kind: KindMissingRequiredClaims}
	ErrTokenExpired            = &Error{Kind: KindTokenExpired}
	ErrReplayDetected          = &Error{Kind: KindReplayDetected}
	ErrInsufficientScope       = &Error{Kind: KindInsufficientScope}
	ErrKeyServiceUnreachable   = &Error{Kind: KindKeyServiceUnreachable}
	ErrTokenServiceUnreachable = &Error{Kind: KindTokenServiceUnreachable}
	ErrPolicyDenied            = &Error{Kind: KindPolicyDenied}
	ErrExchangeRejected        = &Error{Kind: KindExchangeRejected}
	ErrMissingKeyID            = &Error{Kind: KindMissingKeyID}
	ErrMissingAgentIdentifier  = &Error{Kind: KindMissingAgentIdentifier}
	ErrMissingAudience         = &Error{Kind: KindMissingAudience}
)

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsSecurityEvent reports whether err is a replay, signature or trust failure.
func IsSecurityEvent(err error) bool {
	return KindOf(err).SecurityEvent()
}

// IsTransient reports whether err is an outage worth retrying with backoff:
// an unreachable remote service, or a token service answering 5xx.
func IsTransient(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Kind.Transient() {
		return true
	}
	return e.Kind == KindExchangeRejected && e.Status >= 500
}

// PublicMessage returns text safe to show an untrusted caller. Security
// events collapse to a generic authorization failure.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	switch {
	case kind == KindUnknown, kind.SecurityEvent():
		return "authorization failed"
	case kind == KindInsufficientScope:
		var e *Error
		errors.As(err, &e)
		return fmt.Sprintf("insufficient scope: %s required", e.Scope)
	default:
		return "authorization failed: " + kind.String()
	}
}
