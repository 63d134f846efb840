package health

import (
	"context"
	"time"
)

// Status is a component health state.
type Status int

const (
	// StatusHealthy means the component works normally.
	StatusHealthy Status = iota
	// StatusDegraded means the component works with reduced capacity.
	StatusDegraded
	// StatusUnhealthy means the component cannot do its job.
	StatusUnhealthy
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Component names the part of the token pipeline a check covers. Several
// checks may share one component, such as one per JWKS endpoint.
type Component string

const (
	ComponentReplay       Component = "replay"
	ComponentTokenCache   Component = "token_cache"
	ComponentTokenService Component = "token_service"
	ComponentKeyService   Component = "key_service"
	ComponentBreaker      Component = "breaker"
)

// Result is the outcome of one check. Checkers set Status, Message, Target
// and Details; the aggregator fills Component, Duration and CheckedAt.
type Result struct {
	Status    Status
	Component Component

	// Target is the URL or table the check looked at.
	Target string

	Message   string
	Details   map[string]any
	Duration  time.Duration
	CheckedAt time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err}
}

// WithDetails returns r with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// WithTarget returns r naming the probed target.
func (r Result) WithTarget(target string) Result {
	r.Target = target
	return r
}

// Checker reports the health of one part of the pipeline.
type Checker interface {
	Name() string
	Component() Component
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	name      string
	component Component
	fn        func(context.Context) Result
}

// NewCheckerFunc creates a named Checker from fn.
func NewCheckerFunc(name string, component Component, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, component: component, fn: fn}
}

// Name returns the checker name.
func (f *CheckerFunc) Name() string { return f.name }

// Component returns the checked component.
func (f *CheckerFunc) Component() Component { return f.component }

// Check calls the function.
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }
