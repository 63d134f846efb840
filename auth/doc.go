// Package auth verifies agent credentials presented to protected tools.
//
// It provides two verifiers: AssertionVerifier for self-issued agent
// assertions (iss == sub) and AccessTokenVerifier for scoped access tokens
// minted by a trusted Token Service. Both resolve keys through a KeyProvider,
// typically a remote JWKS endpoint, and consult a shared replay guard.
//
// Failures are reported as *Error values carrying a Kind, so callers branch on
// the kind of failure rather than on message text.
package auth
