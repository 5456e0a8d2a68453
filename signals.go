package stash

import "github.com/zoobzio/capitan"

// Binding lifecycle signals.
var (
	// BindingHydrated is emitted when a Binding finishes hydration, whether the
	// value came from the durable slot or from the fallback.
	BindingHydrated = capitan.NewSignal(
		"stash.binding.hydrated",
		"Binding hydrated from backend or fallback",
	)

	// BindingHydrateFailed is emitted when hydration fell back because the
	// durable slot was corrupted or the backend could not be read.
	BindingHydrateFailed = capitan.NewSignal(
		"stash.binding.hydrate.failed",
		"Binding hydration fell back to default",
	)

	// BindingStateChanged is emitted when a Binding transitions between states.
	BindingStateChanged = capitan.NewSignal(
		"stash.binding.state.changed",
		"Binding state transition",
	)

	// BindingClosed is emitted when a Binding is closed.
	BindingClosed = capitan.NewSignal(
		"stash.binding.closed",
		"Binding closed",
	)
)

// Write path signals.
var (
	// BindingWritten is emitted when a write reached memory and the backend.
	BindingWritten = capitan.NewSignal(
		"stash.binding.written",
		"Value written and persisted",
	)

	// BindingPersistFailed is emitted when a write reached memory but the
	// backend rejected it.
	BindingPersistFailed = capitan.NewSignal(
		"stash.binding.persist.failed",
		"Value written to memory but not persisted",
	)

	// BindingFollowReceived is emitted when a followed watcher delivered an
	// external change.
	BindingFollowReceived = capitan.NewSignal(
		"stash.binding.follow.received",
		"External change received from watcher",
	)
)
