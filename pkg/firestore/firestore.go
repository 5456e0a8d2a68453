// Package firestore provides a stash.Backend that keeps each key in its own
// Firestore document and a stash.Watcher built on realtime listeners.
package firestore

import (
	"context"
	"fmt"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/zoobzio/stash"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection = "stash"
	defaultField      = "data"
)

// Backend stores values as a bytes field of one document per key.
type Backend struct {
	client     *firestore.Client
	collection string
	field      string
}

// Option configures a Backend.
type Option func(*Backend)

// WithCollection sets the collection holding the documents.
// Default: "stash".
func WithCollection(collection string) Option {
	return func(b *Backend) {
		b.collection = collection
	}
}

// WithField sets the document field holding the value. Default: "data".
func WithField(field string) Option {
	return func(b *Backend) {
		b.field = field
	}
}

// New creates a Backend using client.
func New(client *firestore.Client, opts ...Option) *Backend {
	b := &Backend{
		client:     client,
		collection: defaultCollection,
		field:      defaultField,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DocumentID returns the document id used for key. Slashes are escaped so a
// key never addresses a subcollection.
func DocumentID(key string) string {
	return url.PathEscape(key)
}

func (b *Backend) doc(key string) *firestore.DocumentRef {
	return b.client.Collection(b.collection).Doc(DocumentID(key))
}

// Get returns the value stored for key. A missing document or field is
// stash.ErrNotFound.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := b.doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, stash.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", key, err)
	}
	value, ok := fieldValue(snap, b.field)
	if !ok {
		return nil, stash.ErrNotFound
	}
	return value, nil
}

// Set stores value for key, creating the document when needed. Other fields
// of the document are left untouched.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.doc(key).Set(ctx, map[string]any{b.field: value}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", key, err)
	}
	return nil
}

// Watcher returns a Watcher for key.
func (b *Backend) Watcher(key string) *Watcher {
	return &Watcher{doc: b.doc(key), field: b.field}
}

// fieldValue extracts field as bytes. Strings are accepted for documents
// written by other tools.
func fieldValue(snap *firestore.DocumentSnapshot, field string) ([]byte, bool) {
	if snap == nil || !snap.Exists() {
		return nil, false
	}
	raw, err := snap.DataAt(field)
	if err != nil {
		return nil, false
	}
	switch v := raw.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// Watcher watches one document using a snapshot listener. The current value
// is emitted first; snapshots without the field are skipped.
type Watcher struct {
	doc   *firestore.DocumentRef
	field string
}

// Watch begins listening and returns a channel that emits the field's bytes
// whenever the document changes. The channel closes when ctx is canceled.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		snapshots := w.doc.Snapshots(ctx)
		defer snapshots.Stop()

		for {
			snap, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				continue
			}

			value, ok := fieldValue(snap, w.field)
			if !ok {
				continue
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

var (
	_ stash.Backend = (*Backend)(nil)
	_ stash.Watcher = (*Watcher)(nil)
)
