package stash

import (
	"sync"
	"time"
)

// DiagnosticKind classifies a recoverable failure.
type DiagnosticKind string

const (
	// DiagnosticHydrateDecode means the durable slot held data that did not
	// decode (or validate) as the bound type.
	DiagnosticHydrateDecode DiagnosticKind = "hydrate.decode"

	// DiagnosticHydrateUnavailable means the backend could not be read at
	// hydration.
	DiagnosticHydrateUnavailable DiagnosticKind = "hydrate.unavailable"

	// DiagnosticPersistFailed means a write reached memory but not the backend.
	DiagnosticPersistFailed DiagnosticKind = "persist.failed"

	// DiagnosticFollowDecode means a followed watcher delivered data that did
	// not decode as the bound type.
	DiagnosticFollowDecode DiagnosticKind = "follow.decode"
)

// Diagnostic describes a failure the Binding recovered from locally.
type Diagnostic struct {
	Kind      DiagnosticKind
	Key       string
	BindingID string
	Err       error
	// Raw holds the offending durable bytes for decode diagnostics.
	Raw  []byte
	Time time.Time
}

// Observer receives diagnostics synchronously from the goroutine that
// produced them. Implementations must not call back into the Binding.
type Observer interface {
	OnDiagnostic(d Diagnostic)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Diagnostic)

// OnDiagnostic calls f(d).
func (f ObserverFunc) OnDiagnostic(d Diagnostic) {
	f(d)
}

// diagnosticRing is a thread-safe ring buffer of recent diagnostics.
// A nil ring is valid and records nothing.
type diagnosticRing struct {
	mu    sync.RWMutex
	items []Diagnostic
	head  int
	count int
}

func newDiagnosticRing(size int) *diagnosticRing {
	if size <= 0 {
		return nil
	}
	return &diagnosticRing{items: make([]Diagnostic, size)}
}

func (r *diagnosticRing) push(d Diagnostic) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.head] = d
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// all returns the recorded diagnostics, oldest first.
func (r *diagnosticRing) all() []Diagnostic {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	size := len(r.items)
	out := make([]Diagnostic, r.count)
	start := (r.head - r.count + size) % size
	for i := range out {
		out[i] = r.items[(start+i)%size]
	}
	return out
}
