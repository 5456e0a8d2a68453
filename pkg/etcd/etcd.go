// Package etcd provides a stash.Backend for etcd and a stash.Watcher built
// on the native Watch API.
package etcd

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	"github.com/zoobzio/stash"
)

// Backend stores values as etcd keys under a prefix.
type Backend struct {
	client *clientv3.Client
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix prepends prefix to every key, e.g. "/app/".
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// New creates a Backend using client.
func New(client *clientv3.Client, opts ...Option) *Backend {
	b := &Backend{client: client}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the value stored for key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.Get(ctx, b.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, stash.ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

// Set puts value for key.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if _, err := b.client.Put(ctx, b.prefix+key, string(value)); err != nil {
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

// Watcher watches an etcd key for changes using the Watch API.
type Watcher struct {
	client *clientv3.Client
	key    string
}

// Watch begins watching the etcd key and returns a channel that emits
// the key's value whenever it is put. The current value is emitted first
// when the key exists.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	resp, err := w.client.Get(ctx, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		if len(resp.Kvs) > 0 {
			select {
			case out <- resp.Kvs[0].Value:
			case <-ctx.Done():
				return
			}
		}

		watchChan := w.client.Watch(ctx, w.key, clientv3.WithRev(resp.Header.Revision+1))

		for {
			select {
			case <-ctx.Done():
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					continue
				}

				for _, event := range watchResp.Events {
					if event.Type != clientv3.EventTypePut {
						continue
					}
					select {
					case out <- event.Kv.Value:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

// Ensure Watcher implements stash.Watcher.
var _ stash.Watcher = (*Watcher)(nil)
