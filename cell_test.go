package stash

import (
	"fmt"
	"sync"
	"testing"
)

func TestMemoryCell_LoadStore(t *testing.T) {
	c := NewCell("a")
	if c.Load() != "a" {
		t.Errorf("expected initial value a, got %q", c.Load())
	}
	c.Store("b")
	if c.Load() != "b" {
		t.Errorf("expected b, got %q", c.Load())
	}
}

func TestMemoryCell_SubscribersInOrder(t *testing.T) {
	c := NewCell(0)

	var log []string
	c.Subscribe(func(v int) { log = append(log, fmt.Sprintf("first:%d", v)) })
	c.Subscribe(func(v int) { log = append(log, fmt.Sprintf("second:%d", v)) })

	c.Store(1)

	if fmt.Sprint(log) != "[first:1 second:1]" {
		t.Errorf("unexpected notification order: %v", log)
	}
}

func TestMemoryCell_Unsubscribe(t *testing.T) {
	c := NewCell(0)

	var calls int
	unsub := c.Subscribe(func(int) { calls++ })
	c.Store(1)
	unsub()
	unsub() // idempotent
	c.Store(2)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if c.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", c.Subscribers())
	}
}

func TestMemoryCell_UnsubscribeKeepsOthers(t *testing.T) {
	c := NewCell(0)

	var a, b int
	unsubA := c.Subscribe(func(int) { a++ })
	c.Subscribe(func(int) { b++ })

	unsubA()
	c.Store(1)

	if a != 0 || b != 1 {
		t.Errorf("expected a=0 b=1, got a=%d b=%d", a, b)
	}
}

func TestMemoryCell_ConcurrentLoad(t *testing.T) {
	c := NewCell(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c.Store(n)
		}(i)
		go func() {
			defer wg.Done()
			_ = c.Load()
		}()
	}
	wg.Wait()
}
