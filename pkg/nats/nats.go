// Package nats provides a stash.Backend for a NATS JetStream key/value
// bucket and a stash.Watcher built on the bucket's Watch API.
package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/zoobzio/stash"
)

// Backend stores values in a JetStream key/value bucket.
type Backend struct {
	kv jetstream.KeyValue
}

// New creates a Backend on kv.
func New(kv jetstream.KeyValue) *Backend {
	return &Backend{kv: kv}
}

// Get returns the latest revision of key. Deleted and purged keys are
// reported as missing.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, stash.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return entry.Value(), nil
}

// Set puts a new revision of key.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if _, err := b.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	return nil
}

// Watcher returns a Watcher for key.
func (b *Backend) Watcher(key string) *Watcher {
	return &Watcher{kv: b.kv, key: key}
}

// Ensure Backend implements stash.Backend.
var _ stash.Backend = (*Backend)(nil)

// Watcher watches a NATS KV key for changes using the Watch API.
type Watcher struct {
	kv  jetstream.KeyValue
	key string
}

// Watch begins watching the key and returns a channel that emits its value
// whenever it changes. The current value is emitted first when present.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	watcher, err := w.kv.Watch(ctx, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to watch key: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer watcher.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values
				if entry == nil {
					continue
				}
				if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
					continue
				}

				select {
				case out <- entry.Value():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ensure Watcher implements stash.Watcher.
var _ stash.Watcher = (*Watcher)(nil)
