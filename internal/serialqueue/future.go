package serialqueue

import "context"

// Future resolves once with the outcome of one submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func (f *Future[T]) complete(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx ends.
//
// Returning early because of ctx does not cancel the task; a later Wait
// still observes its outcome.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}

	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit enqueues task on q and returns a Future for its outcome.
//
// The task receives ctx with cancellation detached, so abandoning the caller
// does not abort work that is already queued.
//
// Returns ErrClosed if q has been closed.
func Submit[T any](ctx context.Context, q *Queue, task func(ctx context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}

	j := &job{
		ctx: context.WithoutCancel(ctx),
		run: func(ctx context.Context) (err error) {
			var val T
			defer func() {
				if r := recover(); r != nil {
					var zero T
					val, err = zero, &PanicError{Queue: q.name, Value: r}
					q.mu.Lock()
					logger := q.logger
					q.mu.Unlock()
					logger.Error("queued task panicked", "queue", q.name, "panic", r)
				}
				f.complete(val, err)
			}()
			val, err = task(ctx)
			return err
		},
	}

	if err := q.enqueue(j); err != nil {
		return nil, err
	}
	return f, nil
}

// Do submits task and waits for its outcome.
func Do[T any](ctx context.Context, q *Queue, task func(ctx context.Context) (T, error)) (T, error) {
	f, err := Submit(ctx, q, task)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Wait(ctx)
}
