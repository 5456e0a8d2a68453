package stash

import (
	"sync"
	"sync/atomic"
)

// Cell is the reactive slot a Binding drives. Hosts with their own state
// primitive can implement Cell and inject it with Binding.Cell.
type Cell[T any] interface {
	// Load returns the current value.
	Load() T

	// Store replaces the current value and notifies subscribers.
	Store(v T)

	// Subscribe registers fn to be called with every stored value.
	// The returned function removes the subscription.
	Subscribe(fn func(T)) (unsubscribe func())
}

// MemoryCell is the default Cell. Loads are lock-free; subscribers are
// invoked synchronously, in registration order, from the goroutine that
// called Store.
type MemoryCell[T any] struct {
	value atomic.Pointer[T]

	mu     sync.Mutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// NewCell creates a MemoryCell holding initial.
func NewCell[T any](initial T) *MemoryCell[T] {
	c := &MemoryCell[T]{}
	c.value.Store(&initial)
	return c
}

// Load returns the current value.
func (c *MemoryCell[T]) Load() T {
	return *c.value.Load()
}

// Store replaces the current value and notifies subscribers.
func (c *MemoryCell[T]) Store(v T) {
	c.value.Store(&v)

	c.mu.Lock()
	subs := make([]subscription[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn for future stores.
func (c *MemoryCell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (c *MemoryCell[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Ensure MemoryCell implements Cell.
var _ Cell[int] = (*MemoryCell[int])(nil)
