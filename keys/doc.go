// Package keys loads and describes an agent's signing key material.
//
// Agents sign with Ed25519 (JWS "EdDSA"). Key material is read once at start
// from a JWK, a JWKS document or a PKCS#8 PEM file, either from disk or from a
// remote URL, and is immutable afterwards. The package also decodes public JWKs
// (OKP and RSA) for verifiers.
package keys
