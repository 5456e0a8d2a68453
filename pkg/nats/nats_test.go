package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/zoobzio/stash"
)

func setupNATS(t *testing.T) jetstream.KeyValue {
	t.Helper()
	ctx := context.Background()

	container, err := tcnats.Run(ctx, "nats:2.10-alpine", tcnats.WithArgument("store_dir", "/tmp/nats/jetstream"))
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	nc, err := nats.Connect(endpoint)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
	})

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("failed to create jetstream: %v", err)
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: "stash",
	})
	if err != nil {
		t.Fatalf("failed to create kv bucket: %v", err)
	}

	return kv
}

func TestBackend_GetMissing(t *testing.T) {
	b := New(setupNATS(t))

	if _, err := b.Get(context.Background(), "absent"); !errors.Is(err, stash.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBackend_GetDeleted(t *testing.T) {
	kv := setupNATS(t)
	ctx := context.Background()
	b := New(kv)

	if err := b.Set(ctx, "gone", []byte("x")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := kv.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := b.Get(ctx, "gone"); !errors.Is(err, stash.ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted key, got %v", err)
	}
}

func TestBackend_SetGet(t *testing.T) {
	b := New(setupNATS(t))
	ctx := context.Background()

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
}

func TestWatcher_EmitsInitialValue(t *testing.T) {
	b := New(setupNATS(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	value := []byte(`{"port": 8080}`)
	if err := b.Set(ctx, "cfg", value); err != nil {
		t.Fatalf("failed to put initial value: %v", err)
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

func TestWatcher_FollowedByBinding(t *testing.T) {
	b := New(setupNATS(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	type flags struct {
		Beta bool `json:"beta"`
	}

	binding := stash.New(b, "flags", flags{})
	if err := binding.Follow(ctx, b.Watcher("flags")); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	defer binding.Close()

	if err := b.Set(ctx, "flags", []byte(`{"beta":true}`)); err != nil {
		t.Fatalf("failed to put value: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !binding.Read().Beta {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for followed value")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_ClosesOnContextCancel(t *testing.T) {
	b := New(setupNATS(t))
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
