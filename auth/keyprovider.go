package auth

import (
	"context"
	"crypto/ed25519"
	"sync"
)

// KeyProvider resolves verification keys by key ID.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: GetKey should honor cancellation/deadlines.
// - Errors: an unknown kid yields ErrKeyNotFound; a transport failure
//   yields ErrKeyServiceUnreachable. Neither is ever silently ignored.
type KeyProvider interface {
	// GetKey returns the public key (ed25519.PublicKey or *rsa.PublicKey)
	// registered under keyID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider serves a fixed, in-process key set. It is useful for
// tools that pin their Token Service key and for tests.
type StaticKeyProvider struct {
	mu   sync.RWMutex
	keys map[string]any
}

// NewStaticKeyProvider creates an empty static key provider.
func NewStaticKeyProvider() *StaticKeyProvider {
	return &StaticKeyProvider{keys: make(map[string]any)}
}

// Add registers key under keyID, replacing any previous key.
func (p *StaticKeyProvider) Add(keyID string, key any) *StaticKeyProvider {
	p.mu.Lock()
	p.keys[keyID] = key
	p.mu.Unlock()
	return p
}

// AddEd25519 is Add for Ed25519 public keys.
func (p *StaticKeyProvider) AddEd25519(keyID string, key ed25519.PublicKey) *StaticKeyProvider {
	return p.Add(keyID, key)
}

// GetKey returns the key registered under keyID.
func (p *StaticKeyProvider) GetKey(_ context.Context, keyID string) (any, error) {
	p.mu.RLock()
	key, ok := p.keys[keyID]
	p.mu.RUnlock()
	if !ok {
		return nil, &Error{Kind: KindKeyNotFound, Detail: "kid " + quote(keyID)}
	}
	return key, nil
}

// KeyProviderFunc adapts a function to KeyProvider.
type KeyProviderFunc func(ctx context.Context, keyID string) (any, error)

// GetKey calls the function.
func (f KeyProviderFunc) GetKey(ctx context.Context, keyID string) (any, error) {
	return f(ctx, keyID)
}

// Ensure StaticKeyProvider implements KeyProvider
var _ KeyProvider = (*StaticKeyProvider)(nil)
