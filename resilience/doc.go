// Package resilience guards calls to the remote services an agent depends
// on: the Token Service and the key-distribution endpoint.
//
// Each guard can be used alone or composed with an Executor:
//
//   - Retry re-runs an operation after transient failures with backoff and
//     jitter. Only errors that auth.IsTransient reports are retried by
//     default; a policy denial or a rejected assertion is final.
//   - CircuitBreaker stops calling a service that keeps failing and probes
//     it again after a cool-down.
//   - RateLimiter bounds how many exchanges an agent issues per second.
//   - Bulkhead bounds how many exchanges are in flight at once.
//   - Timeout bounds a single attempt.
//
// Usage:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 5, Burst: 10})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(5*time.Second),
//	)
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    tok, err = client.Exchange(ctx, assertion.Raw, audience, scopes)
//	    return err
//	})
//
// A fresh assertion must be signed inside the operation so that every retry
// presents a new jti.
package resilience
