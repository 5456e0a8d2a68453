package stash

import "context"

// Watcher observes a durable slot for changes made outside this process and
// emits the raw stored bytes on a channel. Backends that support change
// notification provide a Watcher; Binding.Follow consumes it.
type Watcher interface {
	// Watch begins observing the slot and returns a channel that emits raw
	// bytes when it changes. The channel is closed when the context is
	// canceled or an unrecoverable error occurs.
	//
	// Implementations may emit the current value first; Follow treats it like
	// any other change.
	Watch(ctx context.Context) (<-chan []byte, error)
}
