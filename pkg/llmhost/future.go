package llmhost

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Future.Result before the future is resolved.
var ErrPending = errors.New("llmhost: future not resolved")

// Future is the single-resolution result of an asynchronous operation.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// rejected returns a future that already failed with err.
func rejected[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.resolve(zero, err)
	return f
}

// resolve settles the future. Only the first call has an effect; it reports
// whether this call was the one that settled it.
func (f *Future[T]) resolve(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		if err != nil {
			var zero T
			v = zero
		}
		f.val, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx ends. Giving up on the wait
// does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
		var zero T
		return zero, ErrPending
	}
}
