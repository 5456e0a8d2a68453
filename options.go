package stash

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/pipz"
)

// Pipeline identities.
var (
	persistID        = pipz.NewIdentity("stash:persist", "Writes the encoded value to the backend")
	retryID          = pipz.NewIdentity("stash:retry", "Retries failed persists")
	backoffID        = pipz.NewIdentity("stash:backoff", "Retries failed persists with exponential backoff")
	timeoutID        = pipz.NewIdentity("stash:timeout", "Bounds persist duration")
	circuitBreakerID = pipz.NewIdentity("stash:circuit-breaker", "Stops persisting after repeated failures")
	middlewareID     = pipz.NewIdentity("stash:middleware", "Runs middleware before persisting")
	fallbackID       = pipz.NewIdentity("stash:fallback", "Persists to secondary backends when the primary fails")
	errorHandlerID   = pipz.NewIdentity("stash:error-handler", "Observes persist failures")
	rateLimitID      = pipz.NewIdentity("stash:rate-limit", "Limits the rate of persists")
)

// Option configures the persist pipeline of a Binding. Options wrap the
// backend write with middleware for retry, timeout, circuit breaking and
// other reliability patterns. None are applied by default: a failed persist
// is reported to the caller and never retried unless an option asks for it.
//
// Instance configuration (codec, clock, observer, etc.) is handled via
// chainable methods on the Binding before first use.
type Option[T any] func(pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]]

// buildPipeline wraps a terminal with pipeline options.
func buildPipeline[T any](terminal pipz.Chainable[*Request[T]], opts []Option[T]) pipz.Chainable[*Request[T]] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// persistTo returns the terminal processor that writes a request to backend.
func persistTo[T any](id pipz.Identity, backend Backend) pipz.Chainable[*Request[T]] {
	return pipz.Apply(id, func(ctx context.Context, req *Request[T]) (*Request[T], error) {
		if err := backend.Set(ctx, req.Key, req.Raw); err != nil {
			return req, err
		}
		return req, nil
	})
}

// WithRetry retries a failed persist immediately, up to maxAttempts attempts
// in total. For delays between attempts use WithBackoff.
func WithRetry[T any](maxAttempts int) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewRetry(retryID, p, maxAttempts)
	}
}

// WithBackoff retries a failed persist with increasing delays:
// baseDelay, 2*baseDelay, 4*baseDelay, etc.
func WithBackoff[T any](maxAttempts int, baseDelay time.Duration) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewBackoff(backoffID, p, maxAttempts, baseDelay)
	}
}

// WithTimeout fails a persist that takes longer than d. The in-memory value
// is not affected.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewTimeout(timeoutID, p, d)
	}
}

// WithCircuitBreaker stops calling the backend after 'failures' consecutive
// failed persists and resumes after 'recovery'. While open, writes still reach
// memory and report a persist failure.
func WithCircuitBreaker[T any](failures int, recovery time.Duration) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewCircuitBreaker(circuitBreakerID, p, failures, recovery)
	}
}

// WithFallback persists to each backend in order when the pipeline fails,
// stopping at the first success. A value stored only in a fallback is not
// read back by hydration; pair it with a backend that mirrors the primary.
func WithFallback[T any](backends ...Backend) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		all := make([]pipz.Chainable[*Request[T]], 0, len(backends)+1)
		all = append(all, p)
		for i, backend := range backends {
			id := pipz.NewIdentity(fmt.Sprintf("stash:fallback-%d", i), "Writes the encoded value to a fallback backend")
			all = append(all, persistTo[T](id, backend))
		}
		return pipz.NewFallback(fallbackID, all...)
	}
}

// WithErrorHandler passes persist failures to handler for logging or
// alerting. The failure is still returned to the writer.
func WithErrorHandler[T any](handler pipz.Chainable[*pipz.Error[*Request[T]]]) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewHandle(errorHandlerID, p, handler)
	}
}

// WithRateLimit limits persists to rate per second with the given burst.
// Writers wait for capacity; memory is updated before the wait.
func WithRateLimit[T any](rate float64, burst int) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		return pipz.NewRateLimiter(rateLimitID, rate, burst, p)
	}
}

// WithMiddleware runs processors in order before the wrapped pipeline.
//
// Example:
//
//	stash.New(backend, "user", User{},
//	    stash.WithMiddleware(
//	        stash.UseEffect[User]("audit", auditFn),
//	    ),
//	)
func WithMiddleware[T any](processors ...pipz.Chainable[*Request[T]]) Option[T] {
	return func(p pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
		all := make([]pipz.Chainable[*Request[T]], 0, len(processors)+1)
		all = append(all, processors...)
		all = append(all, p)
		return pipz.NewSequence(middlewareID, all...)
	}
}

// UseEffect creates a processor that performs a side effect. The request
// passes through unchanged; an error aborts the persist.
func UseEffect[T any](name string, fn func(context.Context, *Request[T]) error) pipz.Chainable[*Request[T]] {
	return pipz.Effect(pipz.NewIdentity(name, "stash middleware effect"), fn)
}

// UseTransform creates a processor that rewrites the request and cannot fail.
func UseTransform[T any](name string, fn func(context.Context, *Request[T]) *Request[T]) pipz.Chainable[*Request[T]] {
	return pipz.Transform(pipz.NewIdentity(name, "stash middleware transform"), fn)
}

// UseFilter runs processor only for requests matching condition.
func UseFilter[T any](name string, condition func(context.Context, *Request[T]) bool, processor pipz.Chainable[*Request[T]]) pipz.Chainable[*Request[T]] {
	return pipz.NewFilter(pipz.NewIdentity(name, "stash middleware filter"), condition, processor)
}

// UseApply creates a processor that can rewrite the request, typically its
// Raw bytes, and fail.
func UseApply[T any](name string, fn func(context.Context, *Request[T]) (*Request[T], error)) pipz.Chainable[*Request[T]] {
	return pipz.Apply(pipz.NewIdentity(name, "stash middleware apply"), fn)
}
