// Package consul provides a stash.Backend for Consul KV and a stash.Watcher
// built on blocking queries.
package consul

import (
	"context"
	"fmt"

	"github.com/hashicorp/consul/api"
	"github.com/zoobzio/stash"
)

// Backend stores values as Consul KV pairs under a prefix.
type Backend struct {
	client *api.Client
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix prepends prefix to every key, e.g. "app/".
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// New creates a Backend using client.
func New(client *api.Client, opts ...Option) *Backend {
	b := &Backend{client: client}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the value stored for key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	pair, _, err := b.client.KV().Get(b.prefix+key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if pair == nil {
		return nil, stash.ErrNotFound
	}
	return pair.Value, nil
}

// Set puts value for key.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	pair := &api.KVPair{Key: b.prefix + key, Value: value}
	if _, err := b.client.KV().Put(pair, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	return nil
}

// Watcher returns a Watcher for key.
func (b *Backend) Watcher(key string) *Watcher {
	return &Watcher{client: b.client, key: b.prefix + key}
}

// Ensure Backend implements stash.Backend.
var _ stash.Backend = (*Backend)(nil)

// Watcher watches a Consul KV key for changes using blocking queries.
type Watcher struct {
	client *api.Client
	key    string
}

// Watch begins watching the key and returns a channel that emits its value
// whenever it changes. The current value is emitted first when present.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	kv := w.client.KV()

	pair, meta, err := kv.Get(w.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		lastIndex := meta.LastIndex

		if pair != nil {
			select {
			case out <- pair.Value:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			opts := (&api.QueryOptions{WaitIndex: lastIndex}).WithContext(ctx)
			pair, meta, err := kv.Get(w.key, opts)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			if meta.LastIndex <= lastIndex {
				continue
			}
			lastIndex = meta.LastIndex

			// Deleted keys advance the index without emitting
			if pair == nil {
				continue
			}

			select {
			case out <- pair.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Ensure Watcher implements stash.Watcher.
var _ stash.Watcher = (*Watcher)(nil)
