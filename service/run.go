package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/agentauth/health"
	"github.com/jonwraymond/agentauth/observe"
	"github.com/jonwraymond/agentauth/resilience"
)

// Health check names.
const (
	CheckReplay       = "replay"
	CheckTokenCache   = "token_cache"
	CheckTokenService = "token_service"
	CheckBreaker      = "token_service_breaker"
)

const shutdownTimeout = 5 * time.Second

func (s *Service) registerChecks() {
	s.health.Register(health.NewSizeChecker(CheckReplay, health.ComponentReplay, s.replay.Len, s.cfg.Health.ReplayWarn))

	if s.agent != nil {
		s.health.Register(health.NewSizeChecker(CheckTokenCache, health.ComponentTokenCache, s.agent.Cache().Len, 0))
		probe := s.cfg.TokenService.JWKSURL
		if probe == "" {
			probe = s.cfg.TokenService.Endpoint
		}
		s.health.Register(health.NewEndpointChecker(CheckTokenService, health.ComponentTokenService, probe, s.opts.httpClient))
		if cb := s.agent.CircuitBreaker(); cb != nil {
			s.health.Register(health.NewCheckerFunc(CheckBreaker, health.ComponentBreaker, breakerCheck(cb)))
		}
	}

	for url := range s.keySets {
		if url == s.cfg.TokenService.JWKSURL && s.agent != nil {
			continue
		}
		s.health.Register(health.NewEndpointChecker("jwks:"+url, health.ComponentKeyService, url, s.opts.httpClient))
	}
}

func breakerCheck(cb *resilience.CircuitBreaker) func(context.Context) health.Result {
	return func(context.Context) health.Result {
		m := cb.Metrics()
		details := map[string]any{"state": m.State.String(), "failures": m.Failures}
		switch m.State {
		case resilience.StateOpen:
			return health.Unhealthy("circuit open", nil).WithDetails(details)
		case resilience.StateHalfOpen:
			return health.Degraded("circuit probing").WithDetails(details)
		default:
			return health.Healthy("circuit closed").WithDetails(details)
		}
	}
}

func (s *Service) registerRoutes() {
	health.RegisterHandlers(s.mux, s.health)
	if s.cfg.Observe.Metrics.Enabled && s.cfg.Observe.Metrics.Exporter == "prometheus" {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}
}

// Handler serves health routes and, with the prometheus exporter, /metrics.
func (s *Service) Handler() http.Handler { return s.mux }

// Run sweeps the replay table and token cache and, when health.addr is set,
// serves Handler, until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.replay.Run(ctx, s.cfg.Replay.SweepInterval)
		return nil
	})
	if s.agent != nil {
		g.Go(func() error {
			s.agent.Run(ctx, s.cfg.Cache.SweepInterval)
			return nil
		})
	}

	if s.cfg.Health.Addr != "" {
		ln, err := net.Listen("tcp", s.cfg.Health.Addr)
		if err != nil {
			return fmt.Errorf("service: listen %s: %w", s.cfg.Health.Addr, err)
		}
		srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
		s.logger.Info(ctx, "serving health", observe.Field{Key: "addr", Value: ln.Addr().String()})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
