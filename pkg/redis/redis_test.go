package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/zoobzio/stash"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})
	t.Cleanup(func() { client.Close() })

	if err := client.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err(); err != nil {
		t.Fatalf("failed to enable keyspace notifications: %v", err)
	}

	return client
}

func TestBackend_GetMissing(t *testing.T) {
	client := setupRedis(t)
	b := New(client)

	if _, err := b.Get(context.Background(), "absent"); !errors.Is(err, stash.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBackend_SetGetWithPrefix(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	b := New(client, WithPrefix("app:"))

	if err := b.Set(ctx, "user", []byte(`{"name":"Ana"}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := b.Get(ctx, "user")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"name":"Ana"}` {
		t.Errorf("unexpected value %q", got)
	}

	raw, err := client.Get(ctx, "app:user").Result()
	if err != nil {
		t.Fatalf("expected prefixed key to exist: %v", err)
	}
	if raw != `{"name":"Ana"}` {
		t.Errorf("unexpected raw value %q", raw)
	}
}

func TestBackend_WithBinding(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	type prefs struct {
		Theme string `json:"theme"`
	}

	first := stash.New(New(client), "prefs", prefs{Theme: "light"})
	if first.Hydrate(ctx) != stash.StateEmpty {
		t.Fatalf("expected empty state, got %s", first.State())
	}
	if err := first.Write(ctx, prefs{Theme: "dark"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	second := stash.New(New(client), "prefs", prefs{Theme: "light"})
	if got := second.Read(); got.Theme != "dark" {
		t.Errorf("expected dark, got %q", got.Theme)
	}
}

func TestWatcher_EmitsInitialValue(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := New(client)
	value := []byte(`{"port": 8080}`)
	if err := b.Set(ctx, "config", value); err != nil {
		t.Fatalf("failed to set initial value: %v", err)
	}

	ch, err := b.Watcher("config").Watch(ctx)
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
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := New(client)
	if err := b.Set(ctx, "config", []byte(`{"v": 1}`)); err != nil {
		t.Fatalf("failed to set initial value: %v", err)
	}

	ch, err := b.Watcher("config").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}

	if err := b.Set(ctx, "config", []byte(`{"v": 2}`)); err != nil {
		t.Fatalf("failed to update value: %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != `{"v": 2}` {
			t.Errorf("expected update, got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	b := New(client)
	ch, err := b.Watcher("config").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}
