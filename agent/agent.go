package agent

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/cache"
	"github.com/jonwraymond/agentauth/exchange"
	"github.com/jonwraymond/agentauth/keys"
	"github.com/jonwraymond/agentauth/observe"
	"github.com/jonwraymond/agentauth/resilience"
)

var (
	ErrNoKey          = errors.New("agent: signing key material is required")
	ErrNoTokenService = errors.New("agent: token service client is required")
)

// Config configures an Agent.
type Config struct {
	// Key is the agent's signing identity. Required.
	Key *keys.Material

	// AgentID overrides Key.AgentID.
	AgentID string

	// TokenService exchanges assertions for access tokens. Required.
	TokenService *exchange.Client

	// AssertionAudience is the aud of signed assertions.
	// Default: the Token Service endpoint
	AssertionAudience string

	// Signer builds assertions. Default: exchange.NewSigner with Clock.
	Signer *exchange.Signer

	// CachePolicy bounds cached token lifetime. Zero value: cache.DefaultPolicy().
	CachePolicy cache.Policy

	// CacheStore holds cached tokens. Default: in-memory.
	CacheStore cache.Store

	// Executor guards each exchange.
	// Default: retry of transient failures behind a circuit breaker
	Executor *resilience.Executor

	// Middleware records exchanges and cache lookups. Optional.
	Middleware *observe.Middleware

	// Logger receives agent events. Default: no-op.
	Logger observe.Logger

	// Clock overrides the time source.
	Clock func() time.Time
}

// Agent obtains access tokens on behalf of one agent identity.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: every failure is an *auth.Error. Guard refusals (open circuit,
//   timeout) surface as TokenServiceUnreachable.
type Agent struct {
	key          *keys.Material
	id           string
	assertionAud string
	signer       *exchange.Signer
	client       *exchange.Client
	exec         *resilience.Executor
	mw           *observe.Middleware
	logger       observe.Logger
	tokens       *cache.TokenCache
}

// New creates an Agent.
func New(config Config) (*Agent, error) {
	if config.Key == nil {
		return nil, ErrNoKey
	}
	if config.TokenService == nil {
		return nil, ErrNoTokenService
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.AgentID == "" {
		config.AgentID = config.Key.AgentID
	}
	if config.AgentID == "" {
		return nil, auth.NewError(auth.KindMissingAgentIdentifier, "agent id is required", nil)
	}
	if config.AssertionAudience == "" {
		config.AssertionAudience = config.TokenService.Endpoint()
	}
	if config.Signer == nil {
		config.Signer = exchange.NewSigner(exchange.WithSignerClock(config.Clock))
	}
	if config.Executor == nil {
		config.Executor = DefaultExecutor(config.Clock)
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	a := &Agent{
		key:          config.Key,
		id:           config.AgentID,
		assertionAud: config.AssertionAudience,
		signer:       config.Signer,
		client:       config.TokenService,
		exec:         config.Executor,
		mw:           config.Middleware,
		logger:       config.Logger,
	}

	tokens, err := cache.New(cache.Config{
		Fetcher:    cache.FetcherFunc(a.fetch),
		Policy:     config.CachePolicy,
		Store:      config.CacheStore,
		Clock:      config.Clock,
		Middleware: config.Middleware,
		Logger:     config.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.tokens = tokens
	return a, nil
}

// DefaultExecutor retries transient exchange failures three times with
// jittered exponential backoff, behind a circuit breaker that opens after
// five consecutive transient failures.
func DefaultExecutor(clock func() time.Time) *resilience.Executor {
	return resilience.NewExecutor(
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Clock: clock})),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{Jitter: true})),
	)
}

// ID returns the agent identifier carried in assertions.
func (a *Agent) ID() string { return a.id }

// KeyID returns the kid of the signing key.
func (a *Agent) KeyID() string { return a.key.KeyID }

// Token returns an access token for audience granting at least scopes.
func (a *Agent) Token(ctx context.Context, audience string, scopes ...string) (*auth.AccessToken, error) {
	return a.tokens.GetOrFetch(ctx, audience, scopes)
}

// Authorize sets req's Authorization header to a token for audience.
func (a *Agent) Authorize(req *http.Request, audience string, scopes ...string) error {
	token, err := a.Token(req.Context(), audience, scopes...)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token.BearerHeader())
	return nil
}

// Invalidate drops any cached token for (audience, scopes).
func (a *Agent) Invalidate(audience string, scopes ...string) {
	a.tokens.Invalidate(audience, cache.NormalizeScopes(scopes))
}

// Cache exposes the token cache for stats and sweeping.
func (a *Agent) Cache() *cache.TokenCache { return a.tokens }

// CircuitBreaker returns the breaker guarding exchanges, or nil.
func (a *Agent) CircuitBreaker() *resilience.CircuitBreaker { return a.exec.CircuitBreaker() }

// Run sweeps stale cache entries every interval until ctx is done.
func (a *Agent) Run(ctx context.Context, interval time.Duration) {
	a.tokens.Run(ctx, interval)
}

// fetch signs a fresh assertion and trades it for a token. Each retried
// attempt signs again so no jti is presented twice.
func (a *Agent) fetch(ctx context.Context, audience string, scopes []string) (*auth.AccessToken, error) {
	var token *auth.AccessToken
	err := a.mw.Run(ctx, observe.Op{Component: "agent", Name: "exchange", Audience: audience}, func(ctx context.Context) error {
		return a.exec.Execute(ctx, func(ctx context.Context) error {
			assertion, err := a.signer.Sign(a.key, a.assertionAud, exchange.WithAgentID(a.id))
			if err != nil {
				return err
			}
			token, err = a.client.Exchange(ctx, assertion.Raw, audience, scopes)
			return err
		})
	})
	if err == nil {
		return token, nil
	}

	if auth.KindOf(err) == auth.KindUnknown && (resilience.Refused(err) || ctx.Err() != nil) {
		err = auth.NewError(auth.KindTokenServiceUnreachable, "token service unavailable", err)
	}
	var authErr *auth.Error
	if errors.As(err, &authErr) && authErr.Kind == auth.KindPolicyDenied {
		a.logger.Warn(ctx, "token request denied",
			observe.Field{Key: "agent", Value: a.id},
			observe.Field{Key: "audience", Value: audience},
			observe.Field{Key: "scope", Value: authErr.Scope},
		)
	}
	return nil, err
}
