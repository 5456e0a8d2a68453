package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zoobzio/stash"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}

func setupBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(setupPostgres(t))
	if err := b.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return b
}

func TestQuoteLiteral(t *testing.T) {
	if got := quoteLiteral("it's"); got != `'it''s'` {
		t.Errorf("unexpected quoting %s", got)
	}
}

func TestBackend_GetMissing(t *testing.T) {
	b := setupBackend(t)

	if _, err := b.Get(context.Background(), "absent"); !errors.Is(err, stash.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBackend_SetOverwrites(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	if err := b.Set(ctx, "user", []byte(`{"v": 1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Set(ctx, "user", []byte(`{"v": 2}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := b.Get(ctx, "user")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"v": 2}` {
		t.Errorf("expected latest value, got %q", got)
	}
}

func TestBackend_MigrateIdempotent(t *testing.T) {
	b := setupBackend(t)

	if err := b.Migrate(context.Background()); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestWatcher_EmitsInitialValue(t *testing.T) {
	b := setupBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	value := []byte(`{"port": 8080}`)
	if err := b.Set(ctx, "cfg", value); err != nil {
		t.Fatalf("failed to insert initial value: %v", err)
	}

	ch, err := b.Watcher("cfg").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != string(value) {
			t.Errorf("expected %q, got %q", value, data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}
}

func TestWatcher_EmitsOnChange(t *testing.T) {
	b := setupBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.Set(ctx, "cfg", []byte(`{"v": 1}`)); err != nil {
		t.Fatalf("failed to insert initial value: %v", err)
	}

	ch, err := b.Watcher("cfg").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}

	if err := b.Set(ctx, "other", []byte(`{"v": 9}`)); err != nil {
		t.Fatalf("failed to set other key: %v", err)
	}
	if err := b.Set(ctx, "cfg", []byte(`{"v": 2}`)); err != nil {
		t.Fatalf("failed to update value: %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != `{"v": 2}` {
			t.Errorf("expected update for watched key, got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	b := setupBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ch, err := b.Watcher("cfg").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestBackend_WithBinding(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	counter := stash.New(b, "counter", 0)
	for i := 0; i < 3; i++ {
		if err := counter.Update(ctx, func(n int) int { return n + 1 }); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	again := stash.New(b, "counter", 0)
	if got := again.Read(); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}
