package cacheloader

import "context"

// Future is the shared result of one in-flight load. Every caller that hit
// the same pending entry waits on the same Future and observes the same
// value or error.
type Future[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Done is closed once the load has finished.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the load finishes or ctx is done. Abandoning a wait does
// not cancel the load; other waiters still receive its result.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (f *Future[V]) resolve(v V, err error) {
	f.value = v
	f.err = err
	close(f.done)
}
