package config

import (
	"errors"
	"time"

	"github.com/jonwraymond/agentauth/cache"
	"github.com/jonwraymond/agentauth/observe"
	"github.com/jonwraymond/agentauth/resilience"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Resource kinds.
const (
	KindAccessToken = "access_token"
	KindAssertion   = "assertion"
)

// Replay stores.
const (
	ReplayMemory = "memory"
	ReplaySQLite = "sqlite"
)

// Config is the complete agentauth configuration.
type Config struct {
	Agent        AgentConfig        `yaml:"agent" toml:"agent"`
	TokenService TokenServiceConfig `yaml:"token_service" toml:"token_service"`
	Cache        CacheConfig        `yaml:"cache" toml:"cache"`
	Resilience   ResilienceConfig   `yaml:"resilience" toml:"resilience"`
	Replay       ReplayConfig       `yaml:"replay" toml:"replay"`
	Resources    []ResourceConfig   `yaml:"resources" toml:"resources"`
	Secrets      SecretsConfig      `yaml:"secrets" toml:"secrets"`
	Observe      observe.Config     `yaml:"observe" toml:"observe"`
	Health       HealthConfig       `yaml:"health" toml:"health"`
}

// AgentConfig is the caller identity. Leave Key empty for a process that
// only verifies.
type AgentConfig struct {
	// ID overrides the agent id carried by the key material.
	ID string `yaml:"id" toml:"id"`

	// Key is a file path, an http(s) URL, or a secret reference resolving
	// to a PEM, JWK or JWKS document.
	Key string `yaml:"key" toml:"key"`

	// KeyID selects a key from a JWKS, or names a PEM key.
	KeyID string `yaml:"key_id" toml:"key_id"`
}

// TokenServiceConfig locates the Token Service.
type TokenServiceConfig struct {
	// Endpoint is the exchange URL.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	// Issuer is the iss of its access tokens.
	Issuer string `yaml:"issuer" toml:"issuer"`

	// JWKSURL publishes its token-signing keys.
	JWKSURL string `yaml:"jwks_url" toml:"jwks_url"`

	// AssertionAudience is the aud agents put in assertions.
	// Default: Endpoint
	AssertionAudience string `yaml:"assertion_audience" toml:"assertion_audience"`

	// Timeout bounds one exchange.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// CacheConfig bounds the agent's token cache.
type CacheConfig struct {
	MaxLifetime time.Duration `yaml:"max_lifetime" toml:"max_lifetime"`

	// ExpiryMargin and ReadBuffer are pointers so an explicit 0 survives
	// ApplyDefaults.
	ExpiryMargin *time.Duration `yaml:"expiry_margin" toml:"expiry_margin"`
	ReadBuffer   *time.Duration `yaml:"read_buffer" toml:"read_buffer"`

	ReuseSuperset bool `yaml:"reuse_superset" toml:"reuse_superset"`

	// SweepInterval is how often stale entries are dropped.
	// Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval"`
}

// Policy returns the cache policy.
func (c CacheConfig) Policy() cache.Policy {
	def := cache.DefaultPolicy()
	p := cache.Policy{
		MaxLifetime:   c.MaxLifetime,
		ExpiryMargin:  def.ExpiryMargin,
		ReadBuffer:    def.ReadBuffer,
		ReuseSuperset: c.ReuseSuperset,
	}
	if p.MaxLifetime == 0 {
		p.MaxLifetime = def.MaxLifetime
	}
	if c.ExpiryMargin != nil {
		p.ExpiryMargin = *c.ExpiryMargin
	}
	if c.ReadBuffer != nil {
		p.ReadBuffer = *c.ReadBuffer
	}
	return p
}

// ResilienceConfig guards token exchange.
type ResilienceConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" toml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" toml:"max_delay"`
	Backoff      string        `yaml:"backoff" toml:"backoff"` // exponential|linear|constant
	Jitter       bool          `yaml:"jitter" toml:"jitter"`

	BreakerFailures int           `yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" toml:"breaker_reset"`

	// AttemptTimeout bounds each attempt. Zero leaves only the exchange
	// client's own timeout.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" toml:"attempt_timeout"`

	// RatePerSecond limits exchanges. Zero disables the limiter.
	RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second"`

	// RateWait is how long an exchange may wait for the limiter.
	// Default: 1s
	RateWait time.Duration `yaml:"rate_wait" toml:"rate_wait"`

	// MaxConcurrent caps in-flight exchanges. Zero disables the bulkhead.
	MaxConcurrent int `yaml:"max_concurrent" toml:"max_concurrent"`

	// ConcurrentWait is how long an exchange may wait for a slot.
	ConcurrentWait time.Duration `yaml:"concurrent_wait" toml:"concurrent_wait"`
}

// Executor builds the guard chain for token exchange.
func (r ResilienceConfig) Executor(clock func() time.Time) *resilience.Executor {
	strategy, _ := resilience.ParseBackoff(r.Backoff)
	opts := []resilience.ExecutorOption{
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  r.BreakerFailures,
			ResetTimeout: r.BreakerReset,
			Clock:        clock,
		})),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  r.MaxAttempts,
			InitialDelay: r.InitialDelay,
			MaxDelay:     r.MaxDelay,
			Strategy:     strategy,
			Jitter:       r.Jitter,
		})),
	}
	if r.AttemptTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(r.AttemptTimeout))
	}
	if r.RatePerSecond > 0 {
		opts = append(opts, resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:    r.RatePerSecond,
			MaxWait: r.RateWait,
			Clock:   clock,
		})))
	}
	if r.MaxConcurrent > 0 {
		opts = append(opts, resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: r.MaxConcurrent,
			MaxWait:       r.ConcurrentWait,
		})))
	}
	return resilience.NewExecutor(opts...)
}

// ReplayConfig selects the replay table shared by all verifiers.
type ReplayConfig struct {
	// Store is memory or sqlite.
	// Default: memory
	Store string `yaml:"store" toml:"store"`

	// Path is the SQLite database file.
	Path string `yaml:"path" toml:"path"`

	// SweepInterval is how often expired records are purged.
	// Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval"`
}

// ResourceConfig is one protected tool whose incoming requests this
// process verifies.
type ResourceConfig struct {
	// Name identifies the resource in logs and health output.
	Name string `yaml:"name" toml:"name"`

	// Audience is the identifier tokens must be addressed to.
	Audience string `yaml:"audience" toml:"audience"`

	// Kind is access_token or assertion.
	// Default: access_token
	Kind string `yaml:"kind" toml:"kind"`

	// Issuer is the trusted Token Service. Default: token_service.issuer
	Issuer string `yaml:"issuer" toml:"issuer"`

	// JWKSURL publishes verification keys. For access_token resources it
	// defaults to token_service.jwks_url.
	JWKSURL string `yaml:"jwks_url" toml:"jwks_url"`

	// Methods restricts JWS algorithms for access tokens.
	Methods []string `yaml:"methods" toml:"methods"`

	// Agents restricts assertion resources to these agent ids.
	Agents []string `yaml:"agents" toml:"agents"`
}

// SecretsConfig configures secret reference resolution.
type SecretsConfig struct {
	// Strict rejects secret references that resolve to an empty value.
	Strict bool `yaml:"strict" toml:"strict"`

	// Providers maps a provider name to its options, for example
	// {"file": {"dir": "/etc/agentauth"}}.
	Providers map[string]map[string]any `yaml:"providers" toml:"providers"`
}

// HealthConfig configures the health and metrics listener.
type HealthConfig struct {
	// Addr is the listen address. Empty disables the listener.
	Addr string `yaml:"addr" toml:"addr"`

	// Timeout bounds each check.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// ReplayWarn reports degraded when the replay table reaches this size.
	ReplayWarn int `yaml:"replay_warn" toml:"replay_warn"`
}
