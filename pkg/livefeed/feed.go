package livefeed

import (
	"context"
	"errors"
	"sync"
)

// Feed is a cancelable stream of total snapshots. Each value delivered on Updates replaces the
// previous one; consumers never need to apply deltas.
type Feed[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Producer emits snapshots until ctx is done or it fails. emit returns false once the feed
// has been closed, after which the producer should return.
type Producer[T any] func(ctx context.Context, emit func(T) bool) error

// Start runs produce on its own goroutine. The feed is torn down when ctx is cancelled, when
// Close is called, or when produce returns.
func Start[T any](ctx context.Context, produce Producer[T]) *Feed[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed[T]{
		updates: make(chan T),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	emit := func(v T) bool {
		select {
		case f.updates <- v:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(f.done)
		defer close(f.updates)
		defer cancel()

		err := produce(ctx, emit)
		if err != nil && !errors.Is(err, context.Canceled) {
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
		}
	}()

	return f
}

func (f *Feed[T]) Updates() <-chan T {
	return f.updates
}

// Done is closed once the producer has exited and Updates is closed.
func (f *Feed[T]) Done() <-chan struct{} {
	return f.done
}

// Close releases the subscription and waits for the producer to exit.
func (f *Feed[T]) Close() {
	f.cancel()
	for range f.updates {
	}
	<-f.done
}

// Err reports why the feed stopped. It is nil for a feed closed by its consumer.
func (f *Feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Pipe relays every snapshot of src through fn into a new feed. Closing the returned feed
// closes src.
func Pipe[T, U any](ctx context.Context, src *Feed[T], fn func(T) U) *Feed[U] {
	return Relay(ctx, src, func(v T) (U, error) { return fn(v), nil })
}

// Relay is Pipe with a fallible fn. The first error ends the feed and is reported by Err.
func Relay[T, U any](ctx context.Context, src *Feed[T], fn func(T) (U, error)) *Feed[U] {
	return Start(ctx, func(ctx context.Context, emit func(U) bool) error {
		defer src.Close()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case v, ok := <-src.Updates():
				if !ok {
					return src.Err()
				}
				out, err := fn(v)
				if err != nil {
					return err
				}
				if !emit(out) {
					return nil
				}
			}
		}
	})
}
