package stash

import (
	"bytes"
	"context"
	"sync"
)

// ChannelWatcher adapts a channel of raw payloads to the Watcher interface.
// The returned stream ends when the source closes or ctx is canceled.
type ChannelWatcher struct {
	source <-chan []byte
}

// NewChannelWatcher wraps source.
func NewChannelWatcher(source <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{source: source}
}

// Watch implements Watcher.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			var raw []byte
			var ok bool
			select {
			case <-ctx.Done():
				return
			case raw, ok = <-w.source:
				if !ok {
					return
				}
			}
			select {
			case out <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// StorageEvent reports that another writer replaced the durable bytes of Key.
type StorageEvent struct {
	Key string
	Raw []byte
}

// eventBuffer is the per-watcher queue depth of an EventBridge.
const eventBuffer = 16

// EventBridge fans storage events from a host out to per-key watchers. Hosts
// that learn about foreign writes out of band (a browser "storage" event, a
// message bus, a file watcher on another machine) publish them here, and each
// Binding follows its own key.
//
// Publish never blocks. An event is dropped for a watcher whose queue is full.
type EventBridge struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan []byte
}

// NewEventBridge creates an EventBridge with no watchers.
func NewEventBridge() *EventBridge {
	return &EventBridge{subs: make(map[string]map[int]chan []byte)}
}

// Publish delivers ev to every active watcher of ev.Key and reports how many
// received it.
func (e *EventBridge) Publish(ev StorageEvent) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	delivered := 0
	for _, ch := range e.subs[ev.Key] {
		select {
		case ch <- ev.Raw:
			delivered++
		default:
		}
	}
	return delivered
}

// Wrap returns a Backend that publishes every successful Set on backend to
// the bridge. Bindings sharing a key converge when each writes through the
// wrapped backend and follows the bridge.
func (e *EventBridge) Wrap(backend Backend) Backend {
	return &publishingBackend{Backend: backend, bridge: e}
}

type publishingBackend struct {
	Backend
	bridge *EventBridge
}

func (p *publishingBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := p.Backend.Set(ctx, key, value); err != nil {
		return err
	}
	p.bridge.Publish(StorageEvent{Key: key, Raw: bytes.Clone(value)})
	return nil
}

// Watcher returns a Watcher for key. Each Watch call registers a new queue.
func (e *EventBridge) Watcher(key string) Watcher {
	return &bridgeWatcher{bridge: e, key: key}
}

func (e *EventBridge) register(key string) (int, chan []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	ch := make(chan []byte, eventBuffer)
	if e.subs[key] == nil {
		e.subs[key] = make(map[int]chan []byte)
	}
	e.subs[key][id] = ch
	return id, ch
}

func (e *EventBridge) unregister(key string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ch, ok := e.subs[key][id]; ok {
		delete(e.subs[key], id)
		close(ch)
	}
	if len(e.subs[key]) == 0 {
		delete(e.subs, key)
	}
}

type bridgeWatcher struct {
	bridge *EventBridge
	key    string
}

// Watch implements Watcher.
func (w *bridgeWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	id, ch := w.bridge.register(w.key)
	go func() {
		<-ctx.Done()
		w.bridge.unregister(w.key, id)
	}()
	return ch, nil
}

var (
	_ Watcher = (*ChannelWatcher)(nil)
	_ Watcher = (*bridgeWatcher)(nil)
	_ Backend = (*publishingBackend)(nil)
)
