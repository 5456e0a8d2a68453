// Package testing provides test utilities and helpers for stash bindings.
package testing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/stash"
)

// TestProfile is a standard value type for testing bindings.
// It implements stash.Validator.
type TestProfile struct {
	Name  string `yaml:"name" json:"name"`
	Email string `yaml:"email" json:"email"`
	Age   int    `yaml:"age" json:"age"`
}

// Validate implements stash.Validator.
func (p TestProfile) Validate() error {
	if p.Age < 0 || p.Age > 150 {
		return errors.New("age must be between 0 and 150")
	}
	if p.Name == "" && p.Email != "" {
		return errors.New("name is required when email is set")
	}
	return nil
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForState waits until the binding reaches the expected state or timeout occurs.
func WaitForState[T any](t *testing.T, b *stash.Binding[T], expected stash.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return b.State() == expected
	})
}

// RequireState fails the test immediately if the binding is not in the expected state.
func RequireState[T any](t *testing.T, b *stash.Binding[T], expected stash.State) {
	t.Helper()
	if got := b.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// RequireValue fails the test if the binding's current value doesn't pass check.
func RequireValue[T any](t *testing.T, b *stash.Binding[T], check func(T) bool) {
	t.Helper()
	if v := b.Read(); !check(v) {
		t.Fatalf("value check failed: %+v", v)
	}
}

// NewTestBinding creates a TestProfile binding on a fresh FlakyBackend.
func NewTestBinding(t *testing.T, key string) (*stash.Binding[TestProfile], *FlakyBackend) {
	t.Helper()
	backend := NewFlakyBackend()
	b := stash.New(backend, key, TestProfile{})
	t.Cleanup(func() { _ = b.Close() })
	return b, backend
}

// FlakyBackend is an in-memory stash.Backend whose reads and writes can be
// made to fail on demand.
type FlakyBackend struct {
	*stash.MemoryBackend

	mu     sync.Mutex
	getErr error
	setErr error

	gets atomic.Int64
	sets atomic.Int64
}

// NewFlakyBackend creates an empty FlakyBackend.
func NewFlakyBackend() *FlakyBackend {
	return &FlakyBackend{MemoryBackend: stash.NewMemoryBackend()}
}

// FailGets makes every Get return err until it is called with nil.
func (f *FlakyBackend) FailGets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// FailSets makes every Set return err until it is called with nil.
func (f *FlakyBackend) FailSets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErr = err
}

// Gets returns the number of Get calls.
func (f *FlakyBackend) Gets() int64 {
	return f.gets.Load()
}

// Sets returns the number of Set calls, including failed ones.
func (f *FlakyBackend) Sets() int64 {
	return f.sets.Load()
}

// Get implements stash.Backend.
func (f *FlakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.gets.Add(1)
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.MemoryBackend.Get(ctx, key)
}

// Set implements stash.Backend.
func (f *FlakyBackend) Set(ctx context.Context, key string, value []byte) error {
	f.sets.Add(1)
	f.mu.Lock()
	err := f.setErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryBackend.Set(ctx, key, value)
}

// Ensure FlakyBackend implements stash.Backend.
var _ stash.Backend = (*FlakyBackend)(nil)
