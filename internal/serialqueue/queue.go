package serialqueue

import (
	"context"
	"sync"
)

// State is the lifecycle position of a Queue.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateClosed  State = "closed"
)

// Logger defines the logging interface for the queue.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// job is one queued unit of work. run returns the task's error for stats only;
// the outcome itself is delivered through the job's future.
type job struct {
	ctx context.Context
	run func(ctx context.Context) error
}

// Queue executes tasks strictly one after another.
//
// The zero value is not usable; create queues with New.
type Queue struct {
	name   string
	logger Logger

	mu      sync.Mutex
	pending []*job
	running bool
	closed  bool
	idle    chan struct{} // closed whenever nothing is running

	submitted uint64
	completed uint64
	failed    uint64
}

// New creates an idle queue. name is used in logs and errors.
func New(name string) *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		name:   name,
		logger: noopLogger{},
		idle:   idle,
	}
}

// SetLogger sets the logger for the queue.
func (q *Queue) SetLogger(logger Logger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.logger = logger
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// enqueue appends j and starts the drain goroutine if the queue was idle.
func (q *Queue) enqueue(j *job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, j)
	q.submitted++

	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.drain()
	}
	return nil
}

// drain runs pending jobs until none are left, then marks the queue idle.
// At most one drain goroutine exists per queue.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		logger := q.logger
		q.mu.Unlock()

		err := j.run(j.ctx)

		q.mu.Lock()
		q.completed++
		if err != nil {
			q.failed++
		}
		q.mu.Unlock()

		if err != nil {
			logger.Debug("queued task failed", "queue", q.name, "error", err)
		}
	}
}

// Len returns the number of tasks waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// State returns the current queue state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.closed:
		return StateClosed
	case q.running:
		return StateRunning
	default:
		return StateIdle
	}
}

// Idle blocks until the queue has no running or pending task, or ctx ends.
func (q *Queue) Idle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue from accepting work. Tasks already queued still run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.logger.Debug("queue closed", "queue", q.name, "pending", len(q.pending))
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	Pending   int    `json:"pending"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// Stats returns current counters for the queue.
func (q *Queue) Stats() Stats {
	state := q.State()

	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Name:      q.name,
		State:     state,
		Pending:   len(q.pending),
		Submitted: q.submitted,
		Completed: q.completed,
		Failed:    q.failed,
	}
}
