// Package zookeeper provides a stash.Backend for ZooKeeper nodes and a
// stash.Watcher built on node watches.
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/zoobzio/stash"
)

// Backend stores each key as the data of a znode beneath a root path.
// Missing parent nodes are created on first write.
type Backend struct {
	conn *zk.Conn
	root string
	acl  []zk.ACL
}

// Option configures a Backend.
type Option func(*Backend)

// WithRoot sets the parent path of value nodes. Defaults to "/stash".
func WithRoot(root string) Option {
	return func(b *Backend) {
		b.root = root
	}
}

// WithACL sets the ACL applied to created nodes. Defaults to world:anyone.
func WithACL(acl []zk.ACL) Option {
	return func(b *Backend) {
		b.acl = acl
	}
}

// New creates a Backend using conn.
func New(conn *zk.Conn, opts ...Option) *Backend {
	b := &Backend{
		conn: conn,
		root: "/stash",
		acl:  zk.WorldACL(zk.PermAll),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the znode that holds key.
func (b *Backend) Path(key string) string {
	return path.Join(b.root, url.PathEscape(key))
}

// Get returns the data of the key's node.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := b.conn.Get(b.Path(key))
	if errors.Is(err, zk.ErrNoNode) {
		return nil, stash.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return data, nil
}

// Set writes value to the key's node, creating it if needed.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := b.Path(key)

	_, err := b.conn.Set(p, value, -1)
	if err == nil {
		return nil
	}
	if !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	if err := b.ensureParents(p); err != nil {
		return fmt.Errorf("failed to create parents of %s: %w", p, err)
	}
	_, err = b.conn.Create(p, value, 0, b.acl)
	if errors.Is(err, zk.ErrNodeExists) {
		// Created concurrently; overwrite.
		_, err = b.conn.Set(p, value, -1)
	}
	if err != nil {
		return fmt.Errorf("failed to create key %s: %w", key, err)
	}
	return nil
}

func (b *Backend) ensureParents(p string) error {
	parts := strings.Split(strings.Trim(path.Dir(p), "/"), "/")
	current := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		current += "/" + part
		_, err := b.conn.Create(current, nil, 0, b.acl)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return err
		}
	}
	return nil
}

// Watcher returns a Watcher for key.
func (b *Backend) Watcher(key string) *Watcher {
	return &Watcher{conn: b.conn, path: b.Path(key)}
}

// Ensure Backend implements stash.Backend.
var _ stash.Backend = (*Backend)(nil)

// Watcher watches a ZooKeeper node for changes.
type Watcher struct {
	conn *zk.Conn
	path string
}

// Watch begins watching the node and returns a channel that emits its data
// whenever it changes. The current data is emitted first when the node
// exists; otherwise the watcher waits for it to be created.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			data, _, eventCh, err := w.conn.GetW(w.path)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				exists, _, existCh, err := w.conn.ExistsW(w.path)
				if err != nil {
					return
				}
				if !exists {
					select {
					case <-ctx.Done():
						return
					case <-existCh:
					}
				}
				continue
			}

			select {
			case out <- data:
			case <-ctx.Done():
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-eventCh:
			}
		}
	}()

	return out, nil
}

// Ensure Watcher implements stash.Watcher.
var _ stash.Watcher = (*Watcher)(nil)
