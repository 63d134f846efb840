package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/agentauth/auth"
)

const (
	ticketsAud = "https://tools.local/tickets"
	billingAud = "https://tools.local/billing"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFetcher mints HS256 tokens. The cache only peeks at them.
type fakeFetcher struct {
	clock *fakeClock
	ttl   time.Duration
	calls atomic.Int64

	// grant overrides the scopes placed in the token when set.
	grant []string
	// err fails the next fetch when set.
	err error
	// gate blocks fetches until closed when set.
	gate    chan struct{}
	started chan struct{}
	mu      sync.Mutex
}

func newFakeFetcher(clock *fakeClock, ttl time.Duration) *fakeFetcher {
	return &fakeFetcher{clock: clock, ttl: ttl}
}

func (f *fakeFetcher) Fetch(ctx context.Context, audience string, scopes []string) (*auth.AccessToken, error) {
	n := f.calls.Add(1)

	f.mu.Lock()
	gate, started, fail, grant := f.gate, f.started, f.err, f.grant
	f.err = nil
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	if grant == nil {
		grant = scopes
	}
	return mintToken(f.clock.Now(), f.ttl, audience, "tok-"+strconv.FormatInt(n, 10), grant), nil
}

func (f *fakeFetcher) setGate() (gate chan struct{}, started chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 1)
	return f.gate, f.started
}

func (f *fakeFetcher) failNext(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func mintToken(now time.Time, ttl time.Duration, audience, jti string, scopes []string) *auth.AccessToken {
	exp := now.Add(ttl).Truncate(time.Second)
	claims := &auth.AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://token.local",
			Subject:   "agent://support-bot",
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		Scopes: scopes,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-only"))
	if err != nil {
		panic(err)
	}
	return &auth.AccessToken{
		Raw:       raw,
		Issuer:    claims.Issuer,
		Subject:   claims.Subject,
		Audience:  audience,
		ExpiresAt: exp,
		JWTID:     jti,
		Scopes:    scopes,
	}
}

func newTestCache(t *testing.T, fetcher Fetcher, clock *fakeClock, policy Policy) *TokenCache {
	t.Helper()
	c, err := New(Config{Fetcher: fetcher, Policy: policy, Clock: clock.Now})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}
