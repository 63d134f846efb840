package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func generate(t *testing.T, kid, agentID string) *Material {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	m, err := New(kid, agentID, private)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestParseJWK_RoundTrip(t *testing.T) {
	m := generate(t, "key-1", "agent-1")

	data, _ := json.Marshal(EncodePrivateJWK(m))
	got, err := ParseJWK(data)
	if err != nil {
		t.Fatalf("ParseJWK() error = %v", err)
	}
	if got.KeyID != "key-1" || got.AgentID != "agent-1" || got.Algorithm != AlgEdDSA {
		t.Errorf("ParseJWK() = %+v", got)
	}
	if !got.PublicKey.Equal(m.PublicKey) {
		t.Error("public key mismatch")
	}
}

func TestParseJWK_Errors(t *testing.T) {
	m := generate(t, "key-1", "")
	public, _ := json.Marshal(m.PublicJWK())

	tests := []struct {
		name string
		data string
		want error
	}{
		{"public only", string(public), ErrNoPrivateKey},
		{"rsa", `{"kty":"RSA","n":"AQ","e":"AQAB","d":"AQ"}`, ErrUnsupportedKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJWK([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseJWK() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ParseJWK([]byte("{not json")); err == nil {
		t.Error("ParseJWK() with invalid JSON should fail")
	}
}

func TestParseJWK_MismatchedPublicKey(t *testing.T) {
	a := generate(t, "a", "")
	b := generate(t, "b", "")

	jwk := EncodePrivateJWK(a)
	jwk.X = b.PublicJWK().X
	data, _ := json.Marshal(jwk)

	if _, err := ParseJWK(data); err == nil {
		t.Error("ParseJWK() accepted a JWK whose x does not match d")
	}
}

func TestParseJWKS(t *testing.T) {
	a := generate(t, "a", "agent-a")
	b := generate(t, "b", "agent-b")

	set := JWKS{Keys: []JWK{EncodePrivateJWK(a), EncodePrivateJWK(b), b.PublicJWK()}}
	data, _ := json.Marshal(set)

	got, err := ParseJWKS(data, "b")
	if err != nil {
		t.Fatalf("ParseJWKS() error = %v", err)
	}
	if got.AgentID != "agent-b" {
		t.Errorf("AgentID = %q, want agent-b", got.AgentID)
	}

	if _, err := ParseJWKS(data, ""); !errors.Is(err, ErrAmbiguousKey) {
		t.Errorf("ParseJWKS(\"\") error = %v, want ErrAmbiguousKey", err)
	}
	if _, err := ParseJWKS(data, "missing"); !errors.Is(err, ErrKeyIDNotFound) {
		t.Errorf("ParseJWKS(missing) error = %v, want ErrKeyIDNotFound", err)
	}
}

func TestParse_PEM(t *testing.T) {
	m := generate(t, "", "")
	der, err := x509.MarshalPKCS8PrivateKey(m.PrivateKey)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey() error = %v", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	got, err := Parse(data, LoadOptions{KeyID: "pem-key", AgentID: "agent-pem"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.KeyID != "pem-key" || got.AgentID != "agent-pem" {
		t.Errorf("Parse() = %+v", got)
	}
	if !got.PublicKey.Equal(m.PublicKey) {
		t.Error("public key mismatch")
	}
}

func TestLoadFile(t *testing.T) {
	m := generate(t, "file-key", "")
	data, _ := json.Marshal(EncodePrivateJWK(m))

	path := filepath.Join(t.TempDir(), "agent.jwk")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	got, err := LoadFile(path, LoadOptions{AgentID: "override"})
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got.AgentID != "override" {
		t.Errorf("AgentID = %q, want override", got.AgentID)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing"), LoadOptions{}); err == nil {
		t.Error("LoadFile() on missing file should fail")
	}
}

func TestFetch(t *testing.T) {
	m := generate(t, "remote-key", "agent-remote")
	set := JWKS{Keys: []JWK{EncodePrivateJWK(m)}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/key" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer server.Close()

	got, err := Load(context.Background(), server.URL+"/key", LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.KeyID != "remote-key" || got.AgentID != "agent-remote" {
		t.Errorf("Load() = %+v", got)
	}

	if _, err := Fetch(context.Background(), server.Client(), server.URL+"/other", LoadOptions{}); err == nil {
		t.Error("Fetch() with 404 should fail")
	}
}

func TestParsePublicJWK(t *testing.T) {
	m := generate(t, "ed", "")
	key, err := ParsePublicJWK(m.PublicJWK())
	if err != nil {
		t.Fatalf("ParsePublicJWK(OKP) error = %v", err)
	}
	if pub, ok := key.(ed25519.PublicKey); !ok || !pub.Equal(m.PublicKey) {
		t.Errorf("ParsePublicJWK(OKP) = %T", key)
	}

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	key, err = ParsePublicJWK(EncodeRSAPublicJWK("rsa", &rsaKey.PublicKey))
	if err != nil {
		t.Fatalf("ParsePublicJWK(RSA) error = %v", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok || pub.N.Cmp(rsaKey.N) != 0 || pub.E != rsaKey.E {
		t.Error("RSA key mismatch")
	}

	if _, err := ParsePublicJWK(JWK{Kty: "EC"}); !errors.Is(err, ErrUnsupportedKey) {
		t.Errorf("ParsePublicJWK(EC) error = %v, want ErrUnsupportedKey", err)
	}
}
