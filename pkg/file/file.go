// Package file provides a stash.Backend that stores each key in its own file
// and a stash.Watcher built on fsnotify.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/stash"
)

// Backend stores values as files in a directory. Writes go through a
// temporary file and a rename, so readers never observe a partial value.
type Backend struct {
	dir  string
	perm fs.FileMode
}

// Option configures a Backend.
type Option func(*Backend)

// WithPerm sets the permission bits of value files. Defaults to 0o600.
func WithPerm(perm fs.FileMode) Option {
	return func(b *Backend) {
		b.perm = perm
	}
}

// New creates a Backend rooted at dir. The directory is created on first write.
func New(dir string, opts ...Option) *Backend {
	b := &Backend{
		dir:  dir,
		perm: 0o600,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Path returns the file that holds key.
func (b *Backend) Path(key string) string {
	return filepath.Join(b.dir, url.PathEscape(key))
}

// Get reads the file for key.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, stash.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return data, nil
}

// Set atomically replaces the file for key.
func (b *Backend) Set(_ context.Context, key string, value []byte) error {
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", b.dir, err)
	}

	tmp, err := os.CreateTemp(b.dir, ".stash-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // Gone after a successful rename

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync key %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), b.perm); err != nil {
		return fmt.Errorf("failed to chmod key %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), b.Path(key)); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Watcher returns a Watcher for key.
func (b *Backend) Watcher(key string) *Watcher {
	return &Watcher{dir: b.dir, path: b.Path(key)}
}

// Ensure Backend implements stash.Backend.
var _ stash.Backend = (*Backend)(nil)

// Watcher watches one key file for changes made by other processes.
// The directory is watched rather than the file, because atomic writes
// replace the file on every Set.
type Watcher struct {
	dir  string
	path string
}

// Watch begins watching the key file and returns a channel that emits its
// contents whenever it is written or replaced. The current contents are
// emitted first when the file exists.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", w.dir, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer watcher.Close()

		if data, err := os.ReadFile(w.path); err == nil {
			select {
			case out <- data:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				data, err := os.ReadFile(w.path)
				if err != nil {
					continue
				}

				select {
				case out <- data:
				case <-ctx.Done():
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out, nil
}

// Ensure Watcher implements stash.Watcher.
var _ stash.Watcher = (*Watcher)(nil)
