package keys

import (
	"crypto/ed25519"
	"errors"
)

// AlgEdDSA is the only algorithm agents sign with.
const AlgEdDSA = "EdDSA"

var (
	ErrNoPrivateKey   = errors.New("keys: no private key")
	ErrUnsupportedKey = errors.New("keys: unsupported key type")
	ErrKeyIDNotFound  = errors.New("keys: key id not found")
	ErrAmbiguousKey   = errors.New("keys: key set holds more than one private key")
)

// Material is an agent's signing identity. It is never mutated after load.
type Material struct {
	// KeyID names the public key verifiers must use (JWS "kid").
	KeyID string

	// Algorithm is the JWS algorithm, always AlgEdDSA for loaded keys.
	Algorithm string

	// AgentID is the identity the agent asserts. It may be empty when the
	// source did not carry one; callers then supply an override.
	AgentID string

	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// New builds Material from an Ed25519 private key.
func New(keyID, agentID string, private ed25519.PrivateKey) (*Material, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, ErrNoPrivateKey
	}
	public, _ := private.Public().(ed25519.PublicKey)
	return &Material{
		KeyID:      keyID,
		Algorithm:  AlgEdDSA,
		AgentID:    agentID,
		PrivateKey: private,
		PublicKey:  public,
	}, nil
}

// PublicJWK returns the public half of m as a JWK suitable for publishing in
// a key-distribution document.
func (m *Material) PublicJWK() JWK {
	jwk := EncodePublicJWK(m.KeyID, m.PublicKey)
	jwk.AgentID = m.AgentID
	return jwk
}
