// Package postgres provides a stash.Backend for PostgreSQL and a
// stash.Watcher built on LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zoobzio/stash"
)

// Backend stores values as rows of a key/value table:
//
//	CREATE TABLE stash (
//	    key   TEXT PRIMARY KEY,
//	    value BYTEA NOT NULL
//	);
//
// Migrate creates the table together with a trigger that publishes the key
// of every changed row on the notification channel used by Watcher.
type Backend struct {
	pool    *pgxpool.Pool
	table   string
	channel string
}

// Option configures a Backend.
type Option func(*Backend)

// WithTable sets the table name. Defaults to "stash".
func WithTable(table string) Option {
	return func(b *Backend) {
		b.table = table
	}
}

// WithChannel sets the notification channel. Defaults to "stash_changed".
func WithChannel(channel string) Option {
	return func(b *Backend) {
		b.channel = channel
	}
}

// New creates a Backend using pool.
func New(pool *pgxpool.Pool, opts ...Option) *Backend {
	b := &Backend{
		pool:    pool,
		table:   "stash",
		channel: "stash_changed",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Migrate creates the backing table and its notification trigger.
func (b *Backend) Migrate(ctx context.Context) error {
	table := pgx.Identifier{b.table}.Sanitize()
	fn := pgx.Identifier{b.table + "_notify"}.Sanitize()
	trigger := pgx.Identifier{b.table + "_notify_trigger"}.Sanitize()

	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL
		);

		CREATE OR REPLACE FUNCTION %[2]s() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify(%[4]s, NEW.key);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS %[3]s ON %[1]s;
		CREATE TRIGGER %[3]s
			AFTER INSERT OR UPDATE ON %[1]s
			FOR EACH ROW EXECUTE FUNCTION %[2]s();
	`, table, fn, trigger, quoteLiteral(b.channel))

	if _, err := b.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to migrate table %s: %w", b.table, err)
	}
	return nil
}

// Get returns the value stored for key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", pgx.Identifier{b.table}.Sanitize())
	err := b.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stash.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

// Set inserts or replaces the row for key.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
		pgx.Identifier{b.table}.Sanitize(),
	)
	if _, err := b.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Watcher returns a Watcher for key on the backend's notification channel.
func (b *Backend) Watcher(key string) *Watcher {
	return &Watcher{backend: b, key: key}
}

// Ensure Backend implements stash.Backend.
var _ stash.Backend = (*Backend)(nil)

// Watcher watches one row for changes using LISTEN/NOTIFY. The notification
// payload must be the row key, as published by the trigger Migrate installs.
type Watcher struct {
	backend *Backend
	key     string
}

// Watch begins listening for notifications and returns a channel that emits
// the row's value whenever it changes. The current value is emitted first
// when the row exists.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	conn, err := w.backend.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	channel := w.backend.channel
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer conn.Release()

		if value, err := w.backend.Get(ctx, w.key); err == nil {
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			if notification.Payload != w.key {
				continue
			}

			value, err := w.backend.Get(ctx, w.key)
			if err != nil {
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

// Ensure Watcher implements stash.Watcher.
var _ stash.Watcher = (*Watcher)(nil)

func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(append(out, '\''))
}
