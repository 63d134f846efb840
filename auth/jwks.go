package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/agentauth/keys"
)

// JWKSConfig configures the JWKS key provider.
type JWKSConfig struct {
	// URL is the key-distribution endpoint.
	URL string

	// CacheTTL is how long a fetched key set is trusted before refresh.
	// Default: 10 minutes
	CacheTTL time.Duration

	// MinRefreshInterval bounds how often an unknown kid may force a
	// refetch, so a flood of bogus kids cannot hammer the endpoint.
	// Default: 10 seconds
	MinRefreshInterval time.Duration

	// Timeout bounds a single fetch.
	// Default: 2 seconds
	Timeout time.Duration

	// HTTPClient is the HTTP client to use for requests.
	// If nil, a default client with Timeout is used.
	HTTPClient *http.Client
}

// JWKSKeyProvider retrieves verification keys from a remote JWKS document.
// Both OKP (Ed25519) and RSA keys are accepted; other key types are skipped.
type JWKSKeyProvider struct {
	config JWKSConfig

	mu        sync.RWMutex
	keys      map[string]any
	fetchedAt time.Time
	sfGroup   singleflight.Group
}

// NewJWKSKeyProvider creates a new JWKS key provider.
func NewJWKSKeyProvider(config JWKSConfig) *JWKSKeyProvider {
	// Apply defaults
	if config.CacheTTL <= 0 {
		config.CacheTTL = 10 * time.Minute
	}
	if config.MinRefreshInterval <= 0 {
		config.MinRefreshInterval = 10 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &JWKSKeyProvider{
		config: config,
		keys:   make(map[string]any),
	}
}

// GetKey returns the key for the given key ID, refreshing the key set when
// the cache is stale or the kid is unknown.
func (p *JWKSKeyProvider) GetKey(ctx context.Context, keyID string) (any, error) {
	if keyID == "" {
		return nil, newError(KindKeyNotFound, "token header has no kid", nil)
	}

	p.mu.RLock()
	key, known := p.keys[keyID]
	fetchedAt := p.fetchedAt
	p.mu.RUnlock()

	age := time.Since(fetchedAt)
	if known && age < p.config.CacheTTL {
		return key, nil
	}
	if !known && !fetchedAt.IsZero() && age < p.config.MinRefreshInterval {
		return nil, newError(KindKeyNotFound, "kid "+quote(keyID), nil)
	}

	// Concurrent misses share one fetch. The fetch is detached from any
	// single caller's cancellation; each caller still honors its own ctx.
	ch := p.sfGroup.DoChan("refresh", func() (any, error) {
		p.mu.RLock()
		refreshed := p.fetchedAt.After(fetchedAt)
		p.mu.RUnlock()
		if refreshed {
			return nil, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.Timeout)
		defer cancel()
		return nil, p.refresh(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, newError(KindKeyServiceUnreachable, "key lookup canceled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
	}

	p.mu.RLock()
	key, known = p.keys[keyID]
	p.mu.RUnlock()
	if !known {
		return nil, newError(KindKeyNotFound, "kid "+quote(keyID), nil)
	}
	return key, nil
}

// Refresh forces a fetch of the key set.
func (p *JWKSKeyProvider) Refresh(ctx context.Context) error {
	return p.refresh(ctx)
}

// Len returns the number of keys currently cached.
func (p *JWKSKeyProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys)
}

// refresh fetches keys from the JWKS endpoint and replaces the cache.
func (p *JWKSKeyProvider) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return newError(KindKeyServiceUnreachable, "create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return newError(KindKeyServiceUnreachable, "fetch JWKS", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &Error{
			Kind:   KindKeyServiceUnreachable,
			Detail: "unexpected status " + strconv.Itoa(resp.StatusCode),
			Status: resp.StatusCode,
		}
	}

	var set keys.JWKS
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return newError(KindKeyServiceUnreachable, "decode JWKS", err)
	}

	fetched := make(map[string]any, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kid == "" {
			continue
		}
		key, err := keys.ParsePublicJWK(jwk)
		if err != nil {
			continue // Skip unsupported or invalid keys
		}
		fetched[jwk.Kid] = key
	}

	p.mu.Lock()
	p.keys = fetched
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	return nil
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}

// Ensure JWKSKeyProvider implements KeyProvider
var _ KeyProvider = (*JWKSKeyProvider)(nil)
