package testing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/stash"
)

func TestTestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile TestProfile
		wantErr bool
	}{
		{
			name:    "valid profile",
			profile: TestProfile{Name: "Ana", Email: "a@x.com", Age: 30},
			wantErr: false,
		},
		{
			name:    "zero profile",
			profile: TestProfile{},
			wantErr: false,
		},
		{
			name:    "negative age",
			profile: TestProfile{Name: "Ana", Age: -1},
			wantErr: true,
		},
		{
			name:    "email without name",
			profile: TestProfile{Email: "a@x.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWaitFor(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		result := WaitFor(t, 100*time.Millisecond, func() bool {
			return true
		})
		if !result {
			t.Error("expected WaitFor to return true")
		}
	})

	t.Run("condition never met", func(t *testing.T) {
		result := WaitFor(t, 50*time.Millisecond, func() bool {
			return false
		})
		if result {
			t.Error("expected WaitFor to return false on timeout")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		start := time.Now()
		var met atomic.Bool
		go func() {
			time.Sleep(30 * time.Millisecond)
			met.Store(true)
		}()
		result := WaitFor(t, 200*time.Millisecond, met.Load)
		if !result {
			t.Error("expected WaitFor to return true")
		}
		if time.Since(start) < 30*time.Millisecond {
			t.Error("condition should have taken at least 30ms")
		}
	})
}

func TestWaitForState(t *testing.T) {
	b, _ := NewTestBinding(t, "profile")

	if err := b.Write(context.Background(), TestProfile{Name: "Ana"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if !WaitForState(t, b, stash.StateSynced, 100*time.Millisecond) {
		t.Error("expected binding to reach synced state")
	}
}

func TestRequireState(t *testing.T) {
	b, _ := NewTestBinding(t, "profile")

	b.Hydrate(context.Background())

	// Should not fail for correct state.
	RequireState(t, b, stash.StateEmpty)
}

func TestRequireValue(t *testing.T) {
	b, backend := NewTestBinding(t, "profile")

	if err := backend.MemoryBackend.Set(context.Background(), "profile", []byte(`{"name":"Bo","email":"b@x.com","age":40}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	RequireValue(t, b, func(p TestProfile) bool {
		return p.Name == "Bo" && p.Age == 40
	})
}

func TestFlakyBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewFlakyBackend()
	boom := errors.New("boom")

	backend.FailSets(boom)
	if err := backend.Set(ctx, "k", []byte("v")); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	backend.FailSets(nil)
	if err := backend.Set(ctx, "k", []byte("v")); err != nil {
		t.Errorf("expected success, got %v", err)
	}

	backend.FailGets(boom)
	if _, err := backend.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	if backend.Sets() != 2 || backend.Gets() != 1 {
		t.Errorf("expected 2 sets and 1 get, got %d and %d", backend.Sets(), backend.Gets())
	}
}

func TestNewTestBinding_ClosesOnCleanup(t *testing.T) {
	var b *stash.Binding[TestProfile]
	t.Run("inner", func(t *testing.T) {
		b, _ = NewTestBinding(t, "profile")
		b.Hydrate(context.Background())
	})

	if b.State() != stash.StateClosed {
		t.Errorf("expected closed after cleanup, got %s", b.State())
	}
}
