package stash

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// Binding associates a reactive cell with one durable key.
//
// A Binding is safe for concurrent use. Writes are applied to memory in call
// order and the backend converges on the last written value. Two bindings on
// the same key are not coordinated; hosts should own each key with exactly one
// Binding at a time.
type Binding[T any] struct {
	id       string
	key      string
	fallback T
	backend  Backend
	pipeline pipz.Chainable[*Request[T]]

	codec          Codec
	clock          clockz.Clock
	metrics        MetricsProvider
	observer       Observer
	cell           Cell[T]
	hydrateTimeout time.Duration
	structTags     bool
	onClose        func(State)

	state     atomic.Int32
	lastError atomic.Pointer[error]
	history   *diagnosticRing

	hydrateOnce sync.Once

	// mu orders writes against the cell.
	mu      sync.Mutex
	seq     uint64
	lastRaw []byte
	closed  bool

	// persistMu serializes backend writes; attempted is the newest seq sent
	// and outcome is the result of its persist.
	persistMu sync.Mutex
	attempted uint64
	outcome   error

	// subMu guards registrations; drained is set once Close has removed them.
	subMu   sync.Mutex
	drained bool
	unsubs  []func()
	cancels []context.CancelFunc
}

// New creates a Binding for key on backend. The fallback is used whenever the
// durable slot is empty or unusable.
//
// Hydration is lazy: the backend is first read when the Binding is first used
// (Read, Write, Update, Subscribe, Follow) or when Hydrate is called.
//
// Pipeline options (With*) configure how writes reach the backend. Instance
// configuration uses chainable methods before first use.
//
// Example:
//
//	prefs := stash.New(backend, "prefs", Prefs{Theme: "light"},
//	    stash.WithTimeout[Prefs](2*time.Second),
//	).Codec(stash.YAMLCodec{}).Observer(obs)
func New[T any](backend Backend, key string, fallback T, opts ...Option[T]) *Binding[T] {
	b := &Binding[T]{
		id:       uuid.NewString(),
		key:      key,
		fallback: fallback,
		backend:  backend,
		codec:    JSONCodec{},
		clock:    clockz.RealClock,
		cell:     NewCell(fallback),
	}

	b.pipeline = buildPipeline(persistTo[T](persistID, backend), opts)
	b.state.Store(int32(StatePending))

	return b
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Codec sets the codec used to encode and decode the durable value.
// Default: JSONCodec. Must be called before first use.
func (b *Binding[T]) Codec(codec Codec) *Binding[T] {
	b.codec = codec
	return b
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic timeout testing.
// Must be called before first use.
func (b *Binding[T]) Clock(clock clockz.Clock) *Binding[T] {
	b.clock = clock
	return b
}

// Metrics sets a metrics provider for observability integration.
// Must be called before first use.
func (b *Binding[T]) Metrics(provider MetricsProvider) *Binding[T] {
	b.metrics = provider
	return b
}

// Observer sets the observer that receives diagnostics for recoverable
// failures. Must be called before first use.
func (b *Binding[T]) Observer(observer Observer) *Binding[T] {
	b.observer = observer
	return b
}

// Cell replaces the default MemoryCell with a host-provided reactive cell.
// The Binding stores the hydrated value into it. Must be called before first use.
func (b *Binding[T]) Cell(cell Cell[T]) *Binding[T] {
	b.cell = cell
	return b
}

// HydrateTimeout bounds the backend read performed at hydration. A read that
// does not finish in time is treated as an unavailable backend.
// Default: no timeout. Must be called before first use.
func (b *Binding[T]) HydrateTimeout(d time.Duration) *Binding[T] {
	b.hydrateTimeout = d
	return b
}

// DiagnosticHistory sets the number of recent diagnostics to retain.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before first use.
func (b *Binding[T]) DiagnosticHistory(n int) *Binding[T] {
	b.history = newDiagnosticRing(n)
	return b
}

// StructValidation enables go-playground/validator struct tag validation of
// decoded values. Values failing validation are treated as corrupted.
// Must be called before first use.
func (b *Binding[T]) StructValidation() *Binding[T] {
	b.structTags = true
	return b
}

// OnClose sets a callback invoked once by Close with the state the Binding was
// in before closing. Must be called before first use.
func (b *Binding[T]) OnClose(fn func(State)) *Binding[T] {
	b.onClose = fn
	return b
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// ID returns the unique identifier attached to this Binding's diagnostics.
func (b *Binding[T]) ID() string {
	return b.id
}

// Key returns the durable key. It never changes.
func (b *Binding[T]) Key() string {
	return b.key
}

// State returns the current state of the Binding.
func (b *Binding[T]) State() State {
	return State(b.state.Load())
}

// LastError returns the last recoverable error, or nil. It is cleared by the
// next successful persist.
func (b *Binding[T]) LastError() error {
	ptr := b.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Diagnostics returns the recent diagnostics, oldest first.
// Returns nil if history is not enabled (see DiagnosticHistory).
func (b *Binding[T]) Diagnostics() []Diagnostic {
	return b.history.all()
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

// Hydrate reads the durable slot if that has not happened yet and returns the
// resulting state. Later calls return immediately.
func (b *Binding[T]) Hydrate(ctx context.Context) State {
	b.hydrateOnce.Do(func() {
		b.hydrate(ctx)
	})
	return b.State()
}

// Read returns the current in-memory value, hydrating first if needed.
// It never returns an error: hydration failures yield the fallback.
func (b *Binding[T]) Read() T {
	b.Hydrate(context.Background())
	return b.cell.Load()
}

// Write stores v in memory and then persists it.
//
// The returned error is nil when v reached the backend, a *PersistError when
// it only reached memory, an *EncodeError when the codec rejected it (nothing
// changed), or ErrClosed. If a newer write reaches the backend first, v is
// never sent and the newer write's outcome is returned.
func (b *Binding[T]) Write(ctx context.Context, v T) error {
	return b.write(ctx, func(T) T { return v })
}

// Update applies fn to the current in-memory value, never to a re-read of the
// backend, and writes the result as Write does.
func (b *Binding[T]) Update(ctx context.Context, fn func(T) T) error {
	return b.write(ctx, fn)
}

// Subscribe registers fn to receive every value stored in the cell after this
// call. Subscribers run synchronously inside the write and must not call
// Write, Update or Close from the same goroutine. The returned function
// unsubscribes; Close unsubscribes everything. Subscribing to a closed
// Binding registers nothing.
func (b *Binding[T]) Subscribe(fn func(T)) func() {
	b.Hydrate(context.Background())

	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.drained {
		return func() {}
	}
	unsub := b.cell.Subscribe(fn)
	b.unsubs = append(b.unsubs, unsub)
	return unsub
}

// Follow applies changes made to the durable slot by other processes. Each
// payload from the watcher is decoded and stored in memory without being
// written back. Payloads that fail to decode are reported and ignored.
//
// Follow returns once the watcher is started; changes are applied on a
// background goroutine until ctx is canceled, the watcher closes, or the
// Binding is closed.
func (b *Binding[T]) Follow(ctx context.Context, watcher Watcher) error {
	b.Hydrate(ctx)

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, err := watcher.Watch(ctx)
	if err != nil {
		cancel()
		return err
	}

	b.subMu.Lock()
	if b.drained {
		b.subMu.Unlock()
		cancel()
		return ErrClosed
	}
	b.cancels = append(b.cancels, cancel)
	b.subMu.Unlock()

	go b.follow(ctx, changes)
	return nil
}

// Close tears the Binding down: subscriptions are removed, followers stop and
// later writes return ErrClosed. A persist already in flight completes but
// its outcome no longer changes the Binding. The durable slot is not touched.
func (b *Binding[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.subMu.Lock()
	unsubs, cancels := b.unsubs, b.cancels
	b.unsubs, b.cancels = nil, nil
	b.drained = true
	b.subMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, unsub := range unsubs {
		unsub()
	}

	ctx := context.Background()
	final := b.State()
	b.transitionState(ctx, StateClosed)
	capitan.Emit(ctx, BindingClosed,
		KeyKey.Field(b.key),
		KeyBinding.Field(b.id),
		KeyState.Field(final.String()),
	)
	if b.onClose != nil {
		b.onClose(final)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// hydrate performs the one-time durable read.
func (b *Binding[T]) hydrate(ctx context.Context) {
	start := b.clock.Now()
	if b.hydrateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = b.clock.WithTimeout(ctx, b.hydrateTimeout)
		defer cancel()
	}

	raw, err := b.backend.Get(ctx, b.key)
	switch {
	case errors.Is(err, ErrNotFound):
		b.settle(ctx, b.fallback, nil, StateEmpty, "fallback", start)

	case err != nil:
		b.report(ctx, BindingHydrateFailed, DiagnosticHydrateUnavailable,
			&HydrationError{Key: b.key, Kind: ErrBackendUnavailable, Err: err}, nil)
		b.settle(ctx, b.fallback, nil, StateDegraded, "fallback", start)

	default:
		v, err := b.decode(raw)
		if err != nil {
			b.report(ctx, BindingHydrateFailed, DiagnosticHydrateDecode,
				&HydrationError{Key: b.key, Kind: ErrDecode, Err: err}, raw)
			b.settle(ctx, b.fallback, nil, StateDegraded, "fallback", start)
			return
		}
		b.settle(ctx, v, raw, StateSynced, "backend", start)
	}
}

// settle stores the hydrated value and records the outcome.
func (b *Binding[T]) settle(ctx context.Context, v T, raw []byte, state State, source string, start time.Time) {
	b.mu.Lock()
	b.cell.Store(v)
	b.lastRaw = bytes.Clone(raw)
	b.mu.Unlock()

	b.transitionState(ctx, state)
	capitan.Emit(ctx, BindingHydrated,
		KeyKey.Field(b.key),
		KeyBinding.Field(b.id),
		KeySource.Field(source),
		KeyState.Field(state.String()),
	)
	if b.metrics != nil {
		b.metrics.OnHydrate(source, b.clock.Since(start))
	}
}

// decode unmarshals and validates durable bytes.
func (b *Binding[T]) decode(raw []byte) (T, error) {
	var v T
	if err := b.codec.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, err
	}
	if err := validateValue(v, b.structTags); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// write computes, encodes and stores the next value, then persists it.
func (b *Binding[T]) write(ctx context.Context, fn func(T) T) error {
	b.Hydrate(ctx)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	prev := b.cell.Load()
	next := fn(prev)
	raw, err := b.codec.Marshal(next)
	if err != nil {
		b.mu.Unlock()
		return &EncodeError{Key: b.key, Err: err}
	}
	b.seq++
	req := &Request[T]{
		Key:      b.key,
		Previous: prev,
		Current:  next,
		Raw:      raw,
		Seq:      b.seq,
	}
	b.lastRaw = raw
	b.cell.Store(next)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.OnWrite()
	}
	return b.persist(ctx, req)
}

// persist runs the pipeline for req unless a newer write already reached it.
// A superseded write reports the outcome of the persist that replaced it.
func (b *Binding[T]) persist(ctx context.Context, req *Request[T]) error {
	b.persistMu.Lock()
	defer b.persistMu.Unlock()

	if req.Seq < b.attempted {
		return b.outcome
	}
	b.attempted = req.Seq

	err := b.runPipeline(ctx, req)
	b.outcome = err
	return err
}

// runPipeline sends req to the backend and reports the outcome.
func (b *Binding[T]) runPipeline(ctx context.Context, req *Request[T]) error {
	start := b.clock.Now()
	_, err := b.pipeline.Process(ctx, req)
	elapsed := b.clock.Since(start)

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	if err != nil {
		perr := &PersistError{Key: b.key, Err: err}
		if closed {
			return perr
		}
		b.report(ctx, BindingPersistFailed, DiagnosticPersistFailed, perr, nil)
		b.transitionState(ctx, StateUnsynced)
		if b.metrics != nil {
			b.metrics.OnPersistFailure(elapsed)
		}
		return perr
	}

	if closed {
		return nil
	}
	b.lastError.Store(nil)
	b.transitionState(ctx, StateSynced)
	capitan.Emit(ctx, BindingWritten,
		KeyKey.Field(b.key),
		KeyBinding.Field(b.id),
		KeyBytes.Field(len(req.Raw)),
		KeyDuration.Field(elapsed),
	)
	if b.metrics != nil {
		b.metrics.OnPersistSuccess(elapsed)
	}
	return nil
}

// follow applies external changes until the channel closes.
func (b *Binding[T]) follow(ctx context.Context, changes <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-changes:
			if !ok {
				return
			}
			b.apply(ctx, raw)
		}
	}
}

// apply stores one externally written value.
func (b *Binding[T]) apply(ctx context.Context, raw []byte) {
	capitan.Emit(ctx, BindingFollowReceived,
		KeyKey.Field(b.key),
		KeyBinding.Field(b.id),
		KeyBytes.Field(len(raw)),
	)

	b.mu.Lock()
	if b.closed || bytes.Equal(raw, b.lastRaw) {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	v, err := b.decode(raw)
	if err != nil {
		b.report(ctx, BindingHydrateFailed, DiagnosticFollowDecode,
			&HydrationError{Key: b.key, Kind: ErrDecode, Err: err}, raw)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.lastRaw = bytes.Clone(raw)
	b.cell.Store(v)
	b.mu.Unlock()

	b.transitionState(ctx, StateSynced)
}

// report records a recoverable failure and notifies the observer.
func (b *Binding[T]) report(ctx context.Context, signal capitan.Signal, kind DiagnosticKind, err error, raw []byte) {
	e := err
	b.lastError.Store(&e)

	d := Diagnostic{
		Kind:      kind,
		Key:       b.key,
		BindingID: b.id,
		Err:       err,
		Raw:       bytes.Clone(raw),
		Time:      b.clock.Now(),
	}
	b.history.push(d)

	capitan.Emit(ctx, signal,
		KeyKey.Field(b.key),
		KeyBinding.Field(b.id),
		KeyError.Field(err.Error()),
	)
	if b.observer != nil {
		b.observer.OnDiagnostic(d)
	}
}

// transitionState updates the state and emits a state change event if changed.
// A closed Binding stays closed.
func (b *Binding[T]) transitionState(ctx context.Context, newState State) {
	for {
		old := State(b.state.Load())
		if old == newState || old == StateClosed {
			return
		}
		if b.state.CompareAndSwap(int32(old), int32(newState)) {
			capitan.Emit(ctx, BindingStateChanged,
				KeyKey.Field(b.key),
				KeyOldState.Field(old.String()),
				KeyNewState.Field(newState.String()),
			)
			if b.metrics != nil {
				b.metrics.OnStateChange(old, newState)
			}
			return
		}
	}
}
