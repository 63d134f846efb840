package keys

import (
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// JWK is a single JSON Web Key. Only the members this module reads or writes
// are modelled; AgentID is a private member naming the agent identity bound to
// the key.
type JWK struct {
	Kty     string `json:"kty"`
	Kid     string `json:"kid,omitempty"`
	Use     string `json:"use,omitempty"`
	Alg     string `json:"alg,omitempty"`
	Crv     string `json:"crv,omitempty"`
	X       string `json:"x,omitempty"`
	D       string `json:"d,omitempty"`
	N       string `json:"n,omitempty"`
	E       string `json:"e,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

// JWKS is a key-distribution document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// EncodePublicJWK encodes an Ed25519 public key as an OKP JWK.
func EncodePublicJWK(kid string, public ed25519.PublicKey) JWK {
	return JWK{
		Kty: "OKP",
		Crv: "Ed25519",
		Kid: kid,
		Use: "sig",
		Alg: AlgEdDSA,
		X:   base64.RawURLEncoding.EncodeToString(public),
	}
}

// EncodePrivateJWK encodes m, including the private seed, as an OKP JWK.
func EncodePrivateJWK(m *Material) JWK {
	jwk := m.PublicJWK()
	jwk.D = base64.RawURLEncoding.EncodeToString(m.PrivateKey.Seed())
	return jwk
}

// EncodeRSAPublicJWK encodes an RSA public key.
func EncodeRSAPublicJWK(kid string, public *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(public.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(public.E)).Bytes()),
	}
}

// ParseJWK decodes a private OKP JWK into Material.
func ParseJWK(data []byte) (*Material, error) {
	var jwk JWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("keys: decode jwk: %w", err)
	}
	return materialFromJWK(jwk)
}

// ParseJWKS picks the private key named kid from a key set. With an empty kid
// the set must hold exactly one private key.
func ParseJWKS(data []byte, kid string) (*Material, error) {
	var set JWKS
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("keys: decode jwks: %w", err)
	}

	var found *JWK
	for i := range set.Keys {
		jwk := &set.Keys[i]
		if jwk.D == "" {
			continue
		}
		if kid != "" {
			if jwk.Kid == kid {
				found = jwk
				break
			}
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousKey
		}
		found = jwk
	}
	if found == nil {
		if kid != "" {
			return nil, fmt.Errorf("%w: %q", ErrKeyIDNotFound, kid)
		}
		return nil, ErrNoPrivateKey
	}
	return materialFromJWK(*found)
}

func materialFromJWK(jwk JWK) (*Material, error) {
	if jwk.Kty != "OKP" || jwk.Crv != "Ed25519" {
		return nil, fmt.Errorf("%w: kty=%q crv=%q", ErrUnsupportedKey, jwk.Kty, jwk.Crv)
	}
	if jwk.D == "" {
		return nil, ErrNoPrivateKey
	}
	seed, err := base64.RawURLEncoding.DecodeString(jwk.D)
	if err != nil {
		return nil, fmt.Errorf("keys: decode d: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(seed)

	if jwk.X != "" {
		x, err := base64.RawURLEncoding.DecodeString(jwk.X)
		if err != nil {
			return nil, fmt.Errorf("keys: decode x: %w", err)
		}
		public, _ := private.Public().(ed25519.PublicKey)
		if !public.Equal(ed25519.PublicKey(x)) {
			return nil, fmt.Errorf("keys: public key does not match private key for kid %q", jwk.Kid)
		}
	}

	return New(jwk.Kid, jwk.AgentID, private)
}

// ParsePublicJWK converts a JWK to a verification key: ed25519.PublicKey for
// OKP keys, *rsa.PublicKey for RSA keys.
func ParsePublicJWK(jwk JWK) (any, error) {
	switch jwk.Kty {
	case "OKP":
		if jwk.Crv != "Ed25519" {
			return nil, fmt.Errorf("%w: crv=%q", ErrUnsupportedKey, jwk.Crv)
		}
		x, err := base64.RawURLEncoding.DecodeString(jwk.X)
		if err != nil {
			return nil, fmt.Errorf("decode x: %w", err)
		}
		if len(x) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("x has %d bytes, want %d", len(x), ed25519.PublicKeySize)
		}
		return ed25519.PublicKey(x), nil

	case "RSA":
		if jwk.N == "" {
			return nil, fmt.Errorf("missing n parameter")
		}
		if jwk.E == "" {
			return nil, fmt.Errorf("missing e parameter")
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
		if err != nil {
			return nil, fmt.Errorf("decode n: %w", err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
		if err != nil {
			return nil, fmt.Errorf("decode e: %w", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}, nil

	default:
		return nil, fmt.Errorf("%w: kty=%q", ErrUnsupportedKey, jwk.Kty)
	}
}
