package auth

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKind_String(t *testing.T) {
	for kind, name := range kindNames {
		if kind.String() != name {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, kind.String(), name)
		}
	}
	if Kind(999).String() != "unknown" {
		t.Error("out-of-range kind should stringify as unknown")
	}
}

func TestErrorsIs(t *testing.T) {
	err := fmt.Errorf("verify: %w", newError(KindReplayDetected, "jti seen", nil))

	if !errors.Is(err, ErrReplayDetected) {
		t.Error("errors.Is should match sentinel of same kind")
	}
	if errors.Is(err, ErrTokenExpired) {
		t.Error("errors.Is should not match a different kind")
	}
	if KindOf(err) != KindReplayDetected {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf(plain) should be unknown")
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := newError(KindTokenServiceUnreachable, "", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !strings.Contains(err.Error(), "refused") {
		t.Errorf("Error() = %q, want cause text", err.Error())
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"token service unreachable", newError(KindTokenServiceUnreachable, "", nil), true},
		{"key service unreachable", newError(KindKeyServiceUnreachable, "", nil), true},
		{"5xx rejection", &Error{Kind: KindExchangeRejected, Status: 503}, true},
		{"4xx rejection", &Error{Kind: KindExchangeRejected, Status: 400}, false},
		{"policy denied", newError(KindPolicyDenied, "", nil), false},
		{"replay", newError(KindReplayDetected, "", nil), false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublicMessage(t *testing.T) {
	secret := newError(KindReplayDetected, "jti abc123 from agent-7", nil)
	if msg := PublicMessage(secret); strings.Contains(msg, "abc123") || msg != "authorization failed" {
		t.Errorf("PublicMessage(replay) = %q, leaks detail", msg)
	}
	if !IsSecurityEvent(secret) {
		t.Error("replay should be a security event")
	}

	scope := &Error{Kind: KindInsufficientScope, Scope: "tickets.write"}
	if msg := PublicMessage(scope); !strings.Contains(msg, "tickets.write") {
		t.Errorf("PublicMessage(scope) = %q, want scope name", msg)
	}

	expired := newError(KindTokenExpired, "exp in the past", nil)
	if msg := PublicMessage(expired); msg != "authorization failed: token_expired" {
		t.Errorf("PublicMessage(expired) = %q", msg)
	}
	if PublicMessage(nil) != "" {
		t.Error("PublicMessage(nil) should be empty")
	}
}
