package stash

import "github.com/zoobzio/capitan"

// Field keys for Binding events.
var (
	// KeyKey is the durable key of the Binding.
	KeyKey = capitan.NewStringKey("key")

	// KeyBinding is the unique identifier of the Binding instance.
	KeyBinding = capitan.NewStringKey("binding")

	// KeyState is the current state of the Binding.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeySource is where a hydrated value came from: "backend" or "fallback".
	KeySource = capitan.NewStringKey("source")

	// KeyBytes is the size of the encoded value.
	KeyBytes = capitan.NewIntKey("bytes")

	// KeyDuration is how long the backend call took.
	KeyDuration = capitan.NewDurationKey("duration")
)
