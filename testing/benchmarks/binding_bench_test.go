package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/zoobzio/stash"
)

type benchProfile struct {
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email" yaml:"email"`
	Visits int    `json:"visits" yaml:"visits"`
}

func BenchmarkBinding_Read(b *testing.B) {
	backend := stash.NewMemoryBackend()
	binding := stash.New(backend, "profile", benchProfile{Name: "Ana"})
	binding.Hydrate(context.Background())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = binding.Read()
	}
}

func BenchmarkBinding_ReadParallel(b *testing.B) {
	binding := stash.New(stash.NewMemoryBackend(), "profile", benchProfile{Name: "Ana"})
	binding.Hydrate(context.Background())

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = binding.Read()
		}
	})
}

func BenchmarkBinding_Write(b *testing.B) {
	binding := stash.New(stash.NewMemoryBackend(), "profile", benchProfile{})
	ctx := context.Background()
	binding.Hydrate(ctx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := binding.Write(ctx, benchProfile{Name: "Ana", Visits: i}); err != nil {
			b.Fatalf("Write() error = %v", err)
		}
	}
}

func BenchmarkBinding_Update(b *testing.B) {
	binding := stash.New(stash.NewMemoryBackend(), "profile", benchProfile{})
	ctx := context.Background()
	inc := func(p benchProfile) benchProfile {
		p.Visits++
		return p
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := binding.Update(ctx, inc); err != nil {
			b.Fatalf("Update() error = %v", err)
		}
	}
}

func BenchmarkBinding_WriteWithSubscribers(b *testing.B) {
	for _, n := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("subscribers=%d", n), func(b *testing.B) {
			binding := stash.New(stash.NewMemoryBackend(), "profile", benchProfile{})
			for i := 0; i < n; i++ {
				binding.Subscribe(func(benchProfile) {})
			}
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := binding.Write(ctx, benchProfile{Visits: i}); err != nil {
					b.Fatalf("Write() error = %v", err)
				}
			}
		})
	}
}

func BenchmarkBinding_WriteYAML(b *testing.B) {
	binding := stash.New(stash.NewMemoryBackend(), "profile", benchProfile{}).Codec(stash.YAMLCodec{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := binding.Write(ctx, benchProfile{Name: "Ana", Visits: i}); err != nil {
			b.Fatalf("Write() error = %v", err)
		}
	}
}

func BenchmarkBinding_Hydrate(b *testing.B) {
	backend := stash.NewMemoryBackend()
	ctx := context.Background()
	if err := backend.Set(ctx, "profile", []byte(`{"name":"Ana","email":"a@x.com","visits":3}`)); err != nil {
		b.Fatalf("Set() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		binding := stash.New(backend, "profile", benchProfile{})
		binding.Hydrate(ctx)
	}
}
