package stash

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Backend when the key has no durable entry.
	ErrNotFound = errors.New("stash: key not found")

	// ErrDecode marks durable data that could not be decoded or validated.
	ErrDecode = errors.New("stash: decode failed")

	// ErrBackendUnavailable marks a backend read that failed for any reason
	// other than ErrNotFound.
	ErrBackendUnavailable = errors.New("stash: backend unavailable")

	// ErrPersistFailed marks a write whose durable persist did not succeed.
	ErrPersistFailed = errors.New("stash: persist failed")

	// ErrEncode marks a value that could not be encoded for the backend.
	ErrEncode = errors.New("stash: encode failed")

	// ErrClosed is returned by writes on a closed Binding.
	ErrClosed = errors.New("stash: binding closed")
)

// HydrationError describes why a Binding fell back during hydration. It is
// recorded in LastError and Diagnostics and reported to observers; it is never
// returned from Read.
type HydrationError struct {
	Key string
	// Kind is ErrDecode or ErrBackendUnavailable.
	Kind error
	Err  error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("hydrate %q: %v: %v", e.Key, e.Kind, e.Err)
}

func (e *HydrationError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// PersistError is returned by Write and Update when the value reached memory
// but the backend rejected it.
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %q: %v", e.Key, e.Err)
}

func (e *PersistError) Unwrap() []error {
	return []error{ErrPersistFailed, e.Err}
}

// EncodeError is returned by Write and Update when the codec rejected the
// value. Neither memory nor the backend are touched.
type EncodeError struct {
	Key string
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %q: %v", e.Key, e.Err)
}

func (e *EncodeError) Unwrap() []error {
	return []error{ErrEncode, e.Err}
}
