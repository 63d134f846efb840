package cache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/observe"
)

// Fetcher obtains a new access token for exactly the given scopes, usually
// by signing an assertion and exchanging it.
type Fetcher interface {
	Fetch(ctx context.Context, audience string, scopes []string) (*auth.AccessToken, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, audience string, scopes []string) (*auth.AccessToken, error)

// Fetch calls the function.
func (f FetcherFunc) Fetch(ctx context.Context, audience string, scopes []string) (*auth.AccessToken, error) {
	return f(ctx, audience, scopes)
}

// Config configures a TokenCache.
type Config struct {
	// Fetcher obtains tokens on miss. Required.
	Fetcher Fetcher

	// Policy bounds entry lifetime. Unset bounds are filled by
	// Policy.WithDefaults.
	Policy Policy

	// Store holds entries. Default: a new MemoryStore.
	Store Store

	// FetchTimeout bounds one fetch, independent of any waiting caller.
	// Default: 10 seconds
	FetchTimeout time.Duration

	// Clock overrides the time source.
	Clock func() time.Time

	// Middleware records cache lookups and fetches. Optional.
	Middleware *observe.Middleware

	// Logger receives cache events. Default: no-op.
	Logger observe.Logger
}

// Stats counts cache outcomes since creation.
type Stats struct {
	Hits      int64
	Misses    int64
	Exchanges int64
	Entries   int
}

// TokenCache serves access tokens from cache and fetches on miss.
//
// Contract:
// - Concurrency: safe for concurrent use. Concurrent misses for the same key
//   share one fetch; different keys never wait on each other.
// - Context: callers stop waiting when their ctx is done. The shared fetch
//   keeps running under FetchTimeout so other waiters still get a result.
// - Errors: fetch errors are returned unchanged and nothing is stored.
type TokenCache struct {
	fetcher Fetcher
	policy  Policy
	store   Store
	timeout time.Duration
	now     func() time.Time
	mw      *observe.Middleware
	logger  observe.Logger

	group     singleflight.Group
	hits      atomic.Int64
	misses    atomic.Int64
	exchanges atomic.Int64
}

// New creates a TokenCache.
func New(config Config) (*TokenCache, error) {
	if config.Fetcher == nil {
		return nil, ErrNilFetcher
	}
	config.Policy = config.Policy.WithDefaults()
	if err := config.Policy.Validate(); err != nil {
		return nil, err
	}
	if config.Store == nil {
		config.Store = NewMemoryStore()
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	return &TokenCache{
		fetcher: config.Fetcher,
		policy:  config.Policy,
		store:   config.Store,
		timeout: config.FetchTimeout,
		now:     config.Clock,
		mw:      config.Middleware,
		logger:  config.Logger,
	}, nil
}

// GetOrFetch returns a token for audience covering scopes, from cache when a
// fresh covering entry exists and from the Fetcher otherwise.
func (c *TokenCache) GetOrFetch(ctx context.Context, audience string, scopes []string) (*auth.AccessToken, error) {
	if err := ValidateKey(audience, scopes); err != nil {
		return nil, err
	}
	scopes = NormalizeScopes(scopes)
	key := Key(audience, scopes)

	if token, ok := c.lookup(key, audience, scopes); ok {
		c.hits.Add(1)
		c.mw.CacheLookup(ctx, audience, true)
		return token, nil
	}
	c.misses.Add(1)
	c.mw.CacheLookup(ctx, audience, false)

	ch := c.group.DoChan(key, func() (any, error) {
		// A flight that finished between our lookup and DoChan may
		// already have stored a token.
		if token, ok := c.lookup(key, audience, scopes); ok {
			return token, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx, key, audience, scopes)
	})

	select {
	case <-ctx.Done():
		return nil, auth.NewError(auth.KindTokenServiceUnreachable, "token request canceled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*auth.AccessToken), nil
	}
}

// lookup returns a fresh covering token for key, evicting the entry if it
// has gone stale. With ReuseSuperset it also scans same-audience entries.
func (c *TokenCache) lookup(key, audience string, scopes []string) (*auth.AccessToken, bool) {
	now := c.now()
	if e, ok := c.store.Get(key); ok {
		if c.usable(now, e, scopes) {
			return e.Token, true
		}
		c.store.DeleteIf(key, func(cur Entry) bool { return !c.fresh(now, cur) })
	}

	if !c.policy.ReuseSuperset {
		return nil, false
	}
	var found *auth.AccessToken
	c.store.Range(func(_ string, e Entry) bool {
		if e.Audience == audience && c.usable(now, e, scopes) {
			found = e.Token
			return false
		}
		return true
	})
	return found, found != nil
}

func (c *TokenCache) usable(now time.Time, e Entry, scopes []string) bool {
	return c.fresh(now, e) && e.Token.Covers(scopes)
}

// fresh re-reads exp from the stored token rather than trusting the value
// recorded at write time.
func (c *TokenCache) fresh(now time.Time, e Entry) bool {
	if e.Token == nil {
		return false
	}
	peek, err := auth.PeekUnverified(e.Token.Raw)
	if err != nil || peek.ExpiresAt.IsZero() {
		return false
	}
	return c.policy.Fresh(now, e.CacheUntil, peek.ExpiresAt)
}

func (c *TokenCache) fetch(ctx context.Context, key, audience string, scopes []string) (*auth.AccessToken, error) {
	var token *auth.AccessToken
	op := observe.Op{Component: "cache", Name: "fetch", Audience: audience}
	err := c.mw.Run(ctx, op, func(ctx context.Context) error {
		var err error
		token, err = c.fetcher.Fetch(ctx, audience, scopes)
		return err
	})
	c.exchanges.Add(1)
	if err != nil {
		c.logger.Warn(ctx, "token fetch failed",
			observe.Field{Key: "audience", Value: audience},
			observe.Field{Key: "scope_key", Value: ScopeKey(scopes)},
			observe.Field{Key: "kind", Value: auth.KindOf(err).String()},
		)
		return nil, err
	}

	c.keep(ctx, key, audience, scopes, token)
	return token, nil
}

// keep caches token if it covers the request and outlives the safety
// margin. A token that does not qualify is still returned to the caller.
func (c *TokenCache) keep(ctx context.Context, key, audience string, scopes []string, token *auth.AccessToken) {
	if !token.Covers(scopes) {
		c.logger.Warn(ctx, "token service granted fewer scopes than requested; not caching",
			observe.Field{Key: "audience", Value: audience},
			observe.Field{Key: "scope_key", Value: ScopeKey(scopes)},
		)
		return
	}

	now := c.now()
	expiresAt := token.ExpiresAt
	if peek, err := auth.PeekUnverified(token.Raw); err == nil && !peek.ExpiresAt.IsZero() {
		expiresAt = peek.ExpiresAt
	}
	until := c.policy.CacheUntil(now, expiresAt)
	if !until.After(now) {
		return
	}

	c.store.Set(key, Entry{
		Audience:   audience,
		ScopeKey:   ScopeKey(scopes),
		Token:      token,
		CacheUntil: until,
	})
	c.logger.Debug(ctx, "token cached",
		observe.Field{Key: "audience", Value: audience},
		observe.Field{Key: "scope_key", Value: ScopeKey(scopes)},
		observe.Field{Key: "cache_until", Value: until.UTC().Format(time.RFC3339)},
	)
}

// Invalidate drops the entry for (audience, scopes), for example after a
// tool rejected its token.
func (c *TokenCache) Invalidate(audience string, scopes []string) {
	c.store.Delete(Key(audience, scopes))
}

// Sweep removes every entry that is no longer servable and returns how many
// were removed.
func (c *TokenCache) Sweep() int {
	now := c.now()
	var stale []string
	c.store.Range(func(key string, e Entry) bool {
		if !c.fresh(now, e) {
			stale = append(stale, key)
		}
		return true
	})

	removed := 0
	for _, key := range stale {
		if c.store.DeleteIf(key, func(cur Entry) bool { return !c.fresh(now, cur) }) {
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (c *TokenCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug(ctx, "swept token cache", observe.Field{Key: "removed", Value: n})
			}
		}
	}
}

// Len returns the number of stored entries.
func (c *TokenCache) Len() int {
	return c.store.Len()
}

// Stats returns cache counters.
func (c *TokenCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Exchanges: c.exchanges.Load(),
		Entries:   c.store.Len(),
	}
}
