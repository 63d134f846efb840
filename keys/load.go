package keys

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// LoadOptions refine how a key source is interpreted.
type LoadOptions struct {
	// KeyID selects a key from a JWKS document and names PEM keys, which
	// carry no kid of their own.
	KeyID string

	// AgentID fills Material.AgentID when the source does not carry one.
	AgentID string
}

// Parse detects the encoding of data (PEM, JWKS or single JWK) and decodes it.
func Parse(data []byte, opts LoadOptions) (*Material, error) {
	trimmed := bytes.TrimSpace(data)

	var m *Material
	var err error
	switch {
	case bytes.HasPrefix(trimmed, []byte("-----BEGIN")):
		m, err = ParsePEM(trimmed, opts.KeyID)
	case isKeySet(trimmed):
		m, err = ParseJWKS(trimmed, opts.KeyID)
	default:
		m, err = ParseJWK(trimmed)
	}
	if err != nil {
		return nil, err
	}

	if m.KeyID == "" {
		m.KeyID = opts.KeyID
	}
	if m.AgentID == "" {
		m.AgentID = opts.AgentID
	}
	return m, nil
}

func isKeySet(data []byte) bool {
	var probe struct {
		Keys json.RawMessage `json:"keys"`
	}
	return json.Unmarshal(data, &probe) == nil && len(probe.Keys) > 0
}

// ParsePEM decodes a PKCS#8 "PRIVATE KEY" block holding an Ed25519 key.
func ParsePEM(data []byte, kid string) (*Material, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("keys: no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse pkcs8: %w", err)
	}
	private, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, parsed)
	}
	return New(kid, "", private)
}

// LoadFile reads key material from a file.
func LoadFile(path string, opts LoadOptions) (*Material, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: read %s: %w", path, err)
	}
	return Parse(data, opts)
}

// Fetch downloads key material from url. A nil client gets a 2 second timeout.
func Fetch(ctx context.Context, client *http.Client, url string, opts LoadOptions) (*Material, error) {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("keys: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keys: fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keys: fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("keys: read body: %w", err)
	}
	return Parse(data, opts)
}

// Load resolves source as an http(s) URL or a file path.
func Load(ctx context.Context, source string, opts LoadOptions) (*Material, error) {
	if strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://") {
		return Fetch(ctx, nil, source, opts)
	}
	return LoadFile(source, opts)
}
