package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/agentauth/cache"
	"github.com/jonwraymond/agentauth/keys"
	"github.com/jonwraymond/agentauth/resilience"
	"github.com/jonwraymond/agentauth/secret"
)

// Formats accepted by Parse.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTAUTH_"

// Load reads, expands, overlays and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = FormatTOML
	}
	return Parse(data, format)
}

// Parse decodes data in format, applies environment overrides and
// defaults, and validates the result.
func Parse(data []byte, format string) (*Config, error) {
	expanded, err := secret.ExpandEnvStrict(string(data))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse toml: %w", err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unknown format %q", format)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays AGENTAUTH_* variables onto c.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"AGENT_ID":                    &c.Agent.ID,
		"AGENT_KEY":                   &c.Agent.Key,
		"AGENT_KEY_ID":                &c.Agent.KeyID,
		"TOKEN_SERVICE_ENDPOINT":      &c.TokenService.Endpoint,
		"TOKEN_SERVICE_ISSUER":        &c.TokenService.Issuer,
		"TOKEN_SERVICE_JWKS_URL":      &c.TokenService.JWKSURL,
		"TOKEN_SERVICE_ASSERTION_AUD": &c.TokenService.AssertionAudience,
		"REPLAY_STORE":                &c.Replay.Store,
		"REPLAY_PATH":                 &c.Replay.Path,
		"HEALTH_ADDR":                 &c.Health.Addr,
		"LOG_LEVEL":                   &c.Observe.Logging.Level,
		"SERVICE_NAME":                &c.Observe.ServiceName,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TOKEN_SERVICE_TIMEOUT": &c.TokenService.Timeout,
		"CACHE_MAX_LIFETIME":    &c.Cache.MaxLifetime,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalid, EnvPrefix, name, err)
		}
		*dst = d
	}
	return nil
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.TokenService.Timeout == 0 {
		c.TokenService.Timeout = 5 * time.Second
	}
	if c.TokenService.AssertionAudience == "" {
		c.TokenService.AssertionAudience = c.TokenService.Endpoint
	}

	def := cache.DefaultPolicy()
	if c.Cache.MaxLifetime == 0 {
		c.Cache.MaxLifetime = def.MaxLifetime
	}
	if c.Cache.ExpiryMargin == nil {
		c.Cache.ExpiryMargin = &def.ExpiryMargin
	}
	if c.Cache.ReadBuffer == nil {
		c.Cache.ReadBuffer = &def.ReadBuffer
	}
	if c.Cache.SweepInterval == 0 {
		c.Cache.SweepInterval = time.Minute
	}
	if c.Resilience.RateWait == 0 {
		c.Resilience.RateWait = time.Second
	}

	if c.Replay.Store == "" {
		c.Replay.Store = ReplayMemory
	}
	if c.Replay.SweepInterval == 0 {
		c.Replay.SweepInterval = time.Minute
	}

	for i := range c.Resources {
		r := &c.Resources[i]
		if r.Kind == "" {
			r.Kind = KindAccessToken
		}
		if r.Name == "" {
			r.Name = r.Audience
		}
		if r.Kind == KindAccessToken {
			if r.Issuer == "" {
				r.Issuer = c.TokenService.Issuer
			}
			if r.JWKSURL == "" {
				r.JWKSURL = c.TokenService.JWKSURL
			}
		}
	}

	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = "agentauth"
	}
	if c.Observe.Logging.Level == "" {
		c.Observe.Logging.Level = "info"
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = 5 * time.Second
	}
}

// Validate rejects configurations that would start with incomplete
// security settings.
func (c *Config) Validate() error {
	if c.Agent.Key == "" && len(c.Resources) == 0 {
		return fmt.Errorf("%w: neither agent.key nor resources configured", ErrInvalid)
	}

	if c.Agent.Key != "" {
		if err := validURL("token_service.endpoint", c.TokenService.Endpoint); err != nil {
			return err
		}
		if c.TokenService.Timeout < 0 {
			return fmt.Errorf("%w: token_service.timeout is negative", ErrInvalid)
		}
	}

	if err := c.Cache.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, ok := resilience.ParseBackoff(c.Resilience.Backoff); !ok {
		return fmt.Errorf("%w: resilience.backoff %q", ErrInvalid, c.Resilience.Backoff)
	}
	if c.Resilience.MaxConcurrent < 0 {
		return fmt.Errorf("%w: resilience.max_concurrent is negative", ErrInvalid)
	}

	switch c.Replay.Store {
	case ReplayMemory:
	case ReplaySQLite:
		if c.Replay.Path == "" {
			return fmt.Errorf("%w: replay.path is required for the sqlite store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: replay.store %q", ErrInvalid, c.Replay.Store)
	}

	seen := make(map[string]bool)
	for i, r := range c.Resources {
		field := fmt.Sprintf("resources[%d]", i)
		if r.Audience == "" {
			return fmt.Errorf("%w: %s.audience is required", ErrInvalid, field)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: %s.name %q is duplicated", ErrInvalid, field, r.Name)
		}
		seen[r.Name] = true

		switch r.Kind {
		case KindAccessToken:
			if r.Issuer == "" {
				return fmt.Errorf("%w: %s.issuer is required", ErrInvalid, field)
			}
		case KindAssertion:
		default:
			return fmt.Errorf("%w: %s.kind %q", ErrInvalid, field, r.Kind)
		}
		if err := validURL(field+".jwks_url", r.JWKSURL); err != nil {
			return err
		}
	}

	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: observe: %v", ErrInvalid, err)
	}
	return nil
}

func validURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	if !slices.Contains([]string{"http", "https"}, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%w: %s must be an http or https URL", ErrInvalid, field)
	}
	return nil
}

// Resolver builds a secret resolver from the secrets section. The env
// provider is always available.
func (c *Config) Resolver() (*secret.Resolver, error) {
	r := secret.NewResolver(c.Secrets.Strict, secret.EnvProvider{})
	names := make([]string, 0, len(c.Secrets.Providers))
	for name := range c.Secrets.Providers {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		p, err := secret.DefaultRegistry.Create(name, c.Secrets.Providers[name])
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("config: secrets.providers.%s: %w", name, err)
		}
		r.Register(p)
	}
	return r, nil
}

// LoadKey loads the agent signing key. A secret reference resolves to the
// key document itself; anything else is a path or URL.
func (a AgentConfig) LoadKey(ctx context.Context, r *secret.Resolver) (*keys.Material, error) {
	opts := keys.LoadOptions{KeyID: a.KeyID, AgentID: a.ID}
	if secret.IsSecretRef(a.Key) {
		doc, err := r.ResolveValue(ctx, a.Key)
		if err != nil {
			return nil, fmt.Errorf("config: agent.key: %w", err)
		}
		return keys.Parse([]byte(doc), opts)
	}
	return keys.Load(ctx, a.Key, opts)
}
