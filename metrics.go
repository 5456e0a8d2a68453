package stash

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key binding events.
type MetricsProvider interface {
	// OnStateChange is called when the binding transitions between states.
	OnStateChange(from, to State)

	// OnHydrate is called once hydration completes. Source is "backend" when
	// the value was decoded from the durable slot and "fallback" otherwise.
	OnHydrate(source string, duration time.Duration)

	// OnWrite is called when a write reaches memory.
	OnWrite()

	// OnPersistSuccess is called when a write was persisted.
	OnPersistSuccess(duration time.Duration)

	// OnPersistFailure is called when the backend rejected a write.
	OnPersistFailure(duration time.Duration)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)           {}
func (NoOpMetricsProvider) OnHydrate(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnWrite()                            {}
func (NoOpMetricsProvider) OnPersistSuccess(_ time.Duration)    {}
func (NoOpMetricsProvider) OnPersistFailure(_ time.Duration)    {}
