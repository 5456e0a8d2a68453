package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/zoobzio/stash"
	stashredis "github.com/zoobzio/stash/pkg/redis"
	stashtesting "github.com/zoobzio/stash/testing"
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

func TestBinding_Redis_TwoInstancesConverge(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend := stashredis.New(client, stashredis.WithPrefix("app:"))

	a := stash.New(backend, "settings", defaultSettings)
	bb := stash.New(backend, "settings", defaultSettings)
	if err := bb.Follow(ctx, backend.Watcher("settings")); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	defer bb.Close()

	if err := a.Write(ctx, appSettings{Theme: "dark", Limit: 5}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if !stashtesting.WaitFor(t, 5*time.Second, func() bool {
		return bb.Read().Theme == "dark"
	}) {
		t.Fatalf("second instance never converged, has %+v", bb.Read())
	}
}

func TestBinding_Redis_UnavailableFallsBack(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	backend := stashredis.New(client)
	if err := backend.Set(ctx, "settings", []byte(`{"theme":"dark","limit":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	client.Close()

	b := stash.New(backend, "settings", defaultSettings)
	if got := b.Read(); got != defaultSettings {
		t.Errorf("expected fallback while unavailable, got %+v", got)
	}
	if b.State() != stash.StateDegraded {
		t.Errorf("expected degraded, got %s", b.State())
	}

	var herr *stash.HydrationError
	if !errors.As(b.LastError(), &herr) || !errors.Is(herr, stash.ErrBackendUnavailable) {
		t.Errorf("expected unavailable hydration error, got %v", b.LastError())
	}
}
