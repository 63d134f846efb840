package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonwraymond/agentauth/agent"
	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/config"
	"github.com/jonwraymond/agentauth/exchange"
	"github.com/jonwraymond/agentauth/health"
	"github.com/jonwraymond/agentauth/observe"
	"github.com/jonwraymond/agentauth/replay"
	"github.com/jonwraymond/agentauth/secret"
)

// ErrUnknownResource is returned for a resource name absent from the config.
var ErrUnknownResource = errors.New("service: unknown resource")

// replayTable is what the service needs from either replay store.
type replayTable interface {
	auth.ReplayGuard
	Len() int
	Run(ctx context.Context, interval time.Duration)
}

type options struct {
	clock      func() time.Time
	httpClient *http.Client
}

// Option configures a Service.
type Option func(*options)

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithHTTPClient sets the client used for token exchange, key fetches and
// endpoint health checks.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// resource is one configured protected tool.
type resource struct {
	name      string
	access    *auth.AccessTokenVerifier
	assertion *auth.AssertionVerifier
	authz     auth.Authorizer
}

// Service is the composition root.
//
// Contract:
// - Concurrency: safe for concurrent use after New returns.
// - Lifecycle: Run drives sweepers and the listener until ctx is done;
//   Close releases the replay store, secret providers and telemetry.
type Service struct {
	cfg    *config.Config
	opts   options
	obs    observe.Observer
	logger observe.Logger
	mw     *observe.Middleware

	secrets   *secret.Resolver
	replay    replayTable
	agent     *agent.Agent
	keySets   map[string]*auth.JWKSKeyProvider
	resources map[string]*resource
	health    *health.Aggregator
	mux       *http.ServeMux
}

// New builds every component named by cfg. cfg must already be validated,
// as config.Load does.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Service, err error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		cfg:       cfg,
		opts:      o,
		keySets:   make(map[string]*auth.JWKSKeyProvider),
		resources: make(map[string]*resource),
		health:    health.NewAggregator(cfg.Health.Timeout),
		mux:       http.NewServeMux(),
	}
	defer func() {
		if err != nil {
			_ = s.Close(context.WithoutCancel(ctx))
		}
	}()

	if s.obs, err = observe.NewObserver(ctx, cfg.Observe); err != nil {
		return nil, fmt.Errorf("service: observer: %w", err)
	}
	s.logger = s.obs.Logger()
	if s.mw, err = observe.MiddlewareFromObserver(s.obs, classify); err != nil {
		return nil, fmt.Errorf("service: middleware: %w", err)
	}

	if s.secrets, err = cfg.Resolver(); err != nil {
		return nil, err
	}
	if err = s.openReplay(); err != nil {
		return nil, err
	}
	if cfg.Agent.Key != "" {
		if err = s.buildAgent(ctx); err != nil {
			return nil, err
		}
	}
	for _, rc := range cfg.Resources {
		if err = s.buildResource(rc); err != nil {
			return nil, err
		}
	}
	s.registerChecks()
	s.registerRoutes()

	s.logger.Info(ctx, "agentauth service ready",
		observe.Field{Key: "agent", Value: s.AgentID()},
		observe.Field{Key: "resources", Value: len(s.resources)},
		observe.Field{Key: "replay_store", Value: cfg.Replay.Store},
	)
	return s, nil
}

func classify(err error) string {
	return auth.KindOf(err).String()
}

func (s *Service) openReplay() error {
	ropts := []replay.Option{replay.WithClock(s.opts.clock), replay.WithLogger(s.logger)}
	switch s.cfg.Replay.Store {
	case config.ReplaySQLite:
		g, err := replay.OpenSQLite(s.cfg.Replay.Path, ropts...)
		if err != nil {
			return fmt.Errorf("service: replay store: %w", err)
		}
		s.replay = g
	default:
		s.replay = replay.NewGuard(ropts...)
	}
	return nil
}

func (s *Service) buildAgent(ctx context.Context) error {
	material, err := s.cfg.Agent.LoadKey(ctx, s.secrets)
	if err != nil {
		return fmt.Errorf("service: agent key: %w", err)
	}

	client, err := exchange.NewClient(exchange.ClientConfig{
		Endpoint:   s.cfg.TokenService.Endpoint,
		Timeout:    s.cfg.TokenService.Timeout,
		HTTPClient: s.opts.httpClient,
		Clock:      s.opts.clock,
	})
	if err != nil {
		return fmt.Errorf("service: token service: %w", err)
	}

	s.agent, err = agent.New(agent.Config{
		Key:               material,
		AgentID:           s.cfg.Agent.ID,
		TokenService:      client,
		AssertionAudience: s.cfg.TokenService.AssertionAudience,
		Signer:            exchange.NewSigner(exchange.WithSignerClock(s.opts.clock)),
		CachePolicy:       s.cfg.Cache.Policy(),
		Executor:          s.cfg.Resilience.Executor(s.opts.clock),
		Middleware:        s.mw,
		Logger:            s.logger,
		Clock:             s.opts.clock,
	})
	if err != nil {
		return fmt.Errorf("service: agent: %w", err)
	}
	return nil
}

// keySet returns the shared provider for url, creating it on first use.
func (s *Service) keySet(url string) *auth.JWKSKeyProvider {
	if p, ok := s.keySets[url]; ok {
		return p
	}
	p := auth.NewJWKSKeyProvider(auth.JWKSConfig{URL: url, HTTPClient: s.opts.httpClient})
	s.keySets[url] = p
	return p
}

func (s *Service) buildResource(rc config.ResourceConfig) error {
	r := &resource{name: rc.Name, authz: auth.AllowAll{}}
	if len(rc.Agents) > 0 {
		r.authz = auth.NewAllowList(rc.Agents...)
	}

	var err error
	switch rc.Kind {
	case config.KindAssertion:
		r.assertion, err = auth.NewAssertionVerifier(auth.AssertionVerifierConfig{
			Audience: rc.Audience,
			Keys:     s.keySet(rc.JWKSURL),
			Replay:   s.replay,
			Clock:    s.opts.clock,
			Logger:   s.logger,
		})
	default:
		r.access, err = auth.NewAccessTokenVerifier(auth.AccessTokenVerifierConfig{
			Audience: rc.Audience,
			Issuer:   rc.Issuer,
			Keys:     s.keySet(rc.JWKSURL),
			Replay:   s.replay,
			Methods:  rc.Methods,
			Clock:    s.opts.clock,
			Logger:   s.logger,
		})
	}
	if err != nil {
		return fmt.Errorf("service: resource %q: %w", rc.Name, err)
	}
	s.resources[rc.Name] = r
	return nil
}

// Agent returns the agent, or nil when no agent key is configured.
func (s *Service) Agent() *agent.Agent { return s.agent }

// AgentID returns the configured agent's id, or "".
func (s *Service) AgentID() string {
	if s.agent == nil {
		return ""
	}
	return s.agent.ID()
}

// AccessVerifier returns the access token verifier for the named resource.
func (s *Service) AccessVerifier(name string) (*auth.AccessTokenVerifier, bool) {
	r, ok := s.resources[name]
	if !ok || r.access == nil {
		return nil, false
	}
	return r.access, true
}

// AssertionVerifier returns the assertion verifier for the named resource.
func (s *Service) AssertionVerifier(name string) (*auth.AssertionVerifier, bool) {
	r, ok := s.resources[name]
	if !ok || r.assertion == nil {
		return nil, false
	}
	return r.assertion, true
}

// Health returns the health aggregator so callers can register their own
// checks.
func (s *Service) Health() *health.Aggregator { return s.health }

// Logger returns the configured logger.
func (s *Service) Logger() observe.Logger { return s.logger }

// ReplayLen returns the number of live replay records.
func (s *Service) ReplayLen() int { return s.replay.Len() }

// Close releases the replay store, secret providers and telemetry
// providers. It is safe to call on a partially built Service.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if c, ok := s.replay.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if s.secrets != nil {
		errs = append(errs, s.secrets.Close())
	}
	if s.obs != nil {
		errs = append(errs, s.obs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
