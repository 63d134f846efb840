package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/agentauth/keys"
)

type jwksServer struct {
	*httptest.Server
	hits   atomic.Int32
	mu     sync.Mutex
	set    keys.JWKS
	status int
	delay  time.Duration
}

func newJWKSServer(t *testing.T, jwks ...keys.JWK) *jwksServer {
	t.Helper()
	s := &jwksServer{set: keys.JWKS{Keys: jwks}, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		status, set, delay := s.status, s.set, s.delay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *jwksServer) setDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *jwksServer) addKey(jwk keys.JWK) {
	s.mu.Lock()
	s.set.Keys = append(s.set.Keys, jwk)
	s.mu.Unlock()
}

func TestNewJWKSKeyProvider_Defaults(t *testing.T) {
	p := NewJWKSKeyProvider(JWKSConfig{URL: "https://keys.local/jwks.json"})

	if p.config.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v", p.config.CacheTTL)
	}
	if p.config.MinRefreshInterval != 10*time.Second {
		t.Errorf("MinRefreshInterval = %v", p.config.MinRefreshInterval)
	}
	if p.config.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v", p.config.Timeout)
	}
	if p.config.HTTPClient == nil {
		t.Error("HTTPClient should default")
	}
}

func TestJWKSKeyProvider_GetKey(t *testing.T) {
	public, _, _ := ed25519.GenerateKey(rand.Reader)
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := newJWKSServer(t,
		keys.EncodePublicJWK("okp-1", public),
		keys.EncodeRSAPublicJWK("rsa-1", &rsaKey.PublicKey),
		keys.JWK{Kty: "oct", Kid: "hmac-1"},
	)
	p := NewJWKSKeyProvider(JWKSConfig{URL: srv.URL})

	got, err := p.GetKey(context.Background(), "okp-1")
	if err != nil {
		t.Fatalf("GetKey(okp-1) error = %v", err)
	}
	if pub, ok := got.(ed25519.PublicKey); !ok || !pub.Equal(public) {
		t.Errorf("GetKey(okp-1) = %T, want matching ed25519.PublicKey", got)
	}

	got, err = p.GetKey(context.Background(), "rsa-1")
	if err != nil {
		t.Fatalf("GetKey(rsa-1) error = %v", err)
	}
	if pub, ok := got.(*rsa.PublicKey); !ok || pub.N.Cmp(rsaKey.N) != 0 {
		t.Errorf("GetKey(rsa-1) = %T, want matching *rsa.PublicKey", got)
	}

	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (unsupported key skipped)", p.Len())
	}
	if hits := srv.hits.Load(); hits != 1 {
		t.Errorf("server hits = %d, want 1 (cached)", hits)
	}
}

func TestJWKSKeyProvider_UnknownKid(t *testing.T) {
	public, _, _ := ed25519.GenerateKey(rand.Reader)
	srv := newJWKSServer(t, keys.EncodePublicJWK("okp-1", public))
	p := NewJWKSKeyProvider(JWKSConfig{URL: srv.URL, MinRefreshInterval: time.Hour})

	_, err := p.GetKey(context.Background(), "missing")
	wantKind(t, err, KindKeyNotFound)

	// A flood of unknown kids does not refetch inside MinRefreshInterval.
	for i := 0; i < 5; i++ {
		_, err = p.GetKey(context.Background(), "missing")
		wantKind(t, err, KindKeyNotFound)
	}
	if hits := srv.hits.Load(); hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
}

func TestJWKSKeyProvider_UnknownKidRefetchesAfterInterval(t *testing.T) {
	srv := newJWKSServer(t)
	p := NewJWKSKeyProvider(JWKSConfig{URL: srv.URL, MinRefreshInterval: time.Millisecond})

	_, err := p.GetKey(context.Background(), "rotated")
	wantKind(t, err, KindKeyNotFound)

	public, _, _ := ed25519.GenerateKey(rand.Reader)
	srv.addKey(keys.EncodePublicJWK("rotated", public))
	time.Sleep(5 * time.Millisecond)

	if _, err := p.GetKey(context.Background(), "rotated"); err != nil {
		t.Fatalf("GetKey after rotation error = %v", err)
	}
}

func TestJWKSKeyProvider_EmptyKid(t *testing.T) {
	p := NewJWKSKeyProvider(JWKSConfig{URL: "http://127.0.0.1:0"})
	_, err := p.GetKey(context.Background(), "")
	wantKind(t, err, KindKeyNotFound)
}

func TestJWKSKeyProvider_ServerError(t *testing.T) {
	srv := newJWKSServer(t)
	srv.setStatus(http.StatusInternalServerError)
	p := NewJWKSKeyProvider(JWKSConfig{URL: srv.URL})

	_, err := p.GetKey(context.Background(), "okp-1")
	wantKind(t, err, KindKeyServiceUnreachable)
	if !IsTransient(err) {
		t.Error("key service outage should be transient")
	}
}

func TestJWKSKeyProvider_Unreachable(t *testing.T) {
	srv := newJWKSServer(t)
	url := srv.URL
	srv.Close()

	p := NewJWKSKeyProvider(JWKSConfig{URL: url})
	_, err := p.GetKey(context.Background(), "okp-1")
	wantKind(t, err, KindKeyServiceUnreachable)
}

func TestJWKSKeyProvider_Timeout(t *testing.T) {
	srv := newJWKSServer(t)
	srv.setDelay(200 * time.Millisecond)
	p := NewJWKSKeyProvider(JWKSConfig{URL: srv.URL, Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := p.GetKey(context.Background(), "okp-1")
	wantKind(t, err, KindKeyServiceUnreachable)
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("GetKey took %v, want bounded by timeout", elapsed)
	}
}

func TestJWKSKeyProvider_CallerCancel(t *testing.T) {
	srv := newJWKSServer(t)
	srv.setDelay(200 * time.Millisecond)
	p := NewJWKSKeyProvider(JWKSConfig{URL: srv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.GetKey(ctx, "okp-1")
	wantKind(t, err, KindKeyServiceUnreachable)
}

func TestJWKSKeyProvider_ConcurrentMissesShareFetch(t *testing.T) {
	public, _, _ := ed25519.GenerateKey(rand.Reader)
	srv := newJWKSServer(t, keys.EncodePublicJWK("okp-1", public))
	srv.setDelay(50 * time.Millisecond)
	p := NewJWKSKeyProvider(JWKSConfig{URL: srv.URL})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.GetKey(context.Background(), "okp-1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("GetKey() error = %v", err)
	}
	if hits := srv.hits.Load(); hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
}
