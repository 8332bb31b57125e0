// Package serialqueue runs submitted tasks one at a time, in submission order.
//
// A Queue guards a resource that must never see two operations at once, such
// as a single round-robin database file. Each submission returns a Future that
// resolves with exactly that task's outcome:
//
//	q := serialqueue.New("random.rrd")
//
//	last, err := serialqueue.Do(ctx, q, func(ctx context.Context) (int64, error) {
//	    return tool.Last(ctx, "random.rrd")
//	})
//
// Guarantees:
//   - tasks start in submission order, and task N+1 never starts before task N
//     has finished and its outcome has been recorded
//   - a failing or panicking task rejects only its own Future; the queue keeps going
//   - separate queues share nothing and run concurrently
//
// There are no priorities, retries or cancellation of queued work. Abandoning
// a Wait does not stop the task.
package serialqueue
