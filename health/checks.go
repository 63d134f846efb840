package health

import (
	"context"
	"fmt"
	"net/http"
)

// EndpointChecker probes a remote service the agent depends on, such as the
// JWKS document or the Token Service. Any HTTP answer below 500 counts as
// reachable.
type EndpointChecker struct {
	name      string
	component Component
	url       string
	client    *http.Client
}

// NewEndpointChecker creates a checker that GETs url. A nil client uses
// http.DefaultClient; the aggregator deadline bounds the request.
func NewEndpointChecker(name string, component Component, url string, client *http.Client) *EndpointChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &EndpointChecker{name: name, component: component, url: url, client: client}
}

// Name returns the checker name.
func (c *EndpointChecker) Name() string { return c.name }

// Component returns the remote service kind.
func (c *EndpointChecker) Component() Component { return c.component }

// Check performs the probe.
func (c *EndpointChecker) Check(ctx context.Context) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Unhealthy("invalid endpoint", err).WithTarget(c.url)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Unhealthy("unreachable", err).WithTarget(c.url)
	}
	_ = resp.Body.Close()

	details := map[string]any{"status_code": resp.StatusCode}
	if resp.StatusCode >= 500 {
		return Unhealthy(fmt.Sprintf("answered %d", resp.StatusCode), nil).WithTarget(c.url).WithDetails(details)
	}
	return Healthy("reachable").WithTarget(c.url).WithDetails(details)
}

// SizeChecker reports degraded when a bounded in-memory table, such as the
// replay table or token cache, grows past a threshold. That usually means
// its sweeper is not running.
type SizeChecker struct {
	name      string
	component Component
	size      func() int
	warn      int
}

// NewSizeChecker creates a checker over size. A non-positive warn never
// degrades.
func NewSizeChecker(name string, component Component, size func() int, warn int) *SizeChecker {
	return &SizeChecker{name: name, component: component, size: size, warn: warn}
}

// Name returns the checker name.
func (c *SizeChecker) Name() string { return c.name }

// Component returns the measured table.
func (c *SizeChecker) Component() Component { return c.component }

// Check reads the current size.
func (c *SizeChecker) Check(context.Context) Result {
	n := c.size()
	details := map[string]any{"entries": n}
	if c.warn > 0 {
		details["warn_at"] = c.warn
		if n >= c.warn {
			return Degraded(fmt.Sprintf("%d entries", n)).WithDetails(details)
		}
	}
	return Healthy(fmt.Sprintf("%d entries", n)).WithDetails(details)
}
