// Package cacheloader implements a keyed read-through cache that coalesces
// concurrent loads. Each key holds at most one entry: either a load that is
// still in flight or the value it resolved to. Callers that find a resolved,
// still-valid value get it back immediately; everyone else shares the single
// pending Future for that key.
package cacheloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrLoadPanic is returned to waiters when the load function panics.
var ErrLoadPanic = errors.New("cacheloader: load panicked")

// LoadFunc produces the value for key. ctx is the loader's own context and
// is canceled only by Close, never by an individual waiter.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// ValidateFunc reports whether a cached value may still be served. A non-nil
// error discards the value and triggers a fresh load.
type ValidateFunc[V any] func(value V) error

// Lookup is the tagged result of Get: either a ready value or a pending
// Future. Exactly one of Ready and Pending reports ok.
type Lookup[V any] struct {
	ready  bool
	value  V
	future *Future[V]
}

// Ready returns the cached value if it was available without waiting.
func (l Lookup[V]) Ready() (V, bool) {
	return l.value, l.ready
}

// Pending returns the in-flight load if the value was not immediately
// available.
func (l Lookup[V]) Pending() (*Future[V], bool) {
	return l.future, !l.ready
}

type entry[V any] struct {
	future   *Future[V]
	resolved bool
	value    V
}

// Loader is a per-key cache with load coalescing. Safe for concurrent use.
type Loader[K comparable, V any] struct {
	load     LoadFunc[K, V]
	validate ValidateFunc[V]
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[K]*entry[V]
}

// New creates a Loader. validate may be nil, in which case resolved values
// never go stale.
func New[K comparable, V any](load LoadFunc[K, V], validate ValidateFunc[V], logger *slog.Logger) *Loader[K, V] {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Loader[K, V]{
		load:     load,
		validate: validate,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[K]*entry[V]),
	}
}

// Get returns the cached value for key when one is resolved and passes
// validation. Otherwise it returns the pending Future for key, starting a
// load first if none is in flight. The map check and insert happen under a
// single lock before the load goroutine starts, so at most one load per key
// is ever outstanding.
func (l *Loader[K, V]) Get(key K) Lookup[V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[key]; ok {
		if !e.resolved {
			return Lookup[V]{future: e.future}
		}

		err := l.check(e.value)
		if err == nil {
			return Lookup[V]{ready: true, value: e.value}
		}

		l.logger.Debug("cached value rejected, reloading",
			slog.String("error", err.Error()),
		)

		delete(l.entries, key)
	}

	e := &entry[V]{future: newFuture[V]()}
	l.entries[key] = e

	go l.run(key, e)

	return Lookup[V]{future: e.future}
}

// Forget drops whatever is cached for key. A load already in flight still
// resolves its waiters but its result is not stored.
func (l *Loader[K, V]) Forget(key K) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Len reports the number of entries, pending or resolved.
func (l *Loader[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Close cancels the context handed to in-flight loads. Get keeps working
// afterwards, but new loads start with a canceled context.
func (l *Loader[K, V]) Close() {
	l.cancel()
}

func (l *Loader[K, V]) check(v V) error {
	if l.validate == nil {
		return nil
	}

	return l.validate(v)
}

// run performs one load and publishes the outcome. The map is updated
// before waiters are released so a Get issued right after Wait returns
// observes the resolved entry.
func (l *Loader[K, V]) run(key K, e *entry[V]) {
	v, err := l.safeLoad(key)

	l.mu.Lock()
	if cur, ok := l.entries[key]; ok && cur == e {
		if err != nil {
			delete(l.entries, key)
		} else {
			e.resolved = true
			e.value = v
		}
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Debug("load failed, entry cleared", slog.String("error", err.Error()))
	}

	e.future.resolve(v, err)
}

func (l *Loader[K, V]) safeLoad(key K) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in cache load", slog.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrLoadPanic, r)
		}
	}()

	return l.load(l.ctx, key)
}
