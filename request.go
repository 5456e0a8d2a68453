package stash

// Request carries one write through the persist pipeline.
// It provides access to both the previous and current values, allowing
// pipeline stages to make decisions based on what changed.
type Request[T any] struct {
	// Key is the durable key being written.
	Key string

	// Previous is the in-memory value before this write.
	Previous T

	// Current is the value already stored in memory by this write.
	Current T

	// Raw is the encoded form of Current that the terminal hands to the
	// backend. Middleware may rewrite it (for example to compress or sign).
	Raw []byte

	// Seq orders writes on a Binding. Later writes have larger values.
	Seq uint64
}
