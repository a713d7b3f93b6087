package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// ErrQueueClosed is returned for tasks submitted after Shutdown.
var ErrQueueClosed = errors.New("task queue closed")

// Task is one unit of work executed on the queue's single worker.
// Run must honor ctx cancellation cooperatively.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// funcTask adapts a plain function to the Task interface.
type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

func (t *funcTask) Name() string                  { return t.name }
func (t *funcTask) Run(ctx context.Context) error { return t.fn(ctx) }

// NewTask wraps a function as a Task.
func NewTask(name string, fn func(ctx context.Context) error) Task {
	return &funcTask{name: name, fn: fn}
}

// Result is the future returned by Submit. Callers either await it or
// discard it for fire-and-forget semantics.
type Result struct {
	done chan struct{}
	err  error
}

// Done returns a channel closed when the task has finished.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err returns the task's error. Only valid after Done is closed.
func (r *Result) Err() error {
	return r.err
}

// Wait blocks until the task finishes or ctx is cancelled.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Result) complete(err error) {
	r.err = err
	close(r.done)
}

type queuedTask struct {
	task   Task
	result *Result
}

// TaskQueue executes sync tasks strictly sequentially on one
// background worker. At most one task runs at a time, which is what
// serializes all drawable-store and status mutations without locking
// inside the tasks themselves. Submission is non-blocking; tasks
// execute in submission order.
type TaskQueue struct {
	logger *log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*queuedTask
	running bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	depthListener func(int)
}

// NewTaskQueue creates a queue and starts its worker. If logger is
// nil, a default stderr logger is used.
func NewTaskQueue(logger *log.Logger) *TaskQueue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &TaskQueue{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(1)
	go q.worker()
	return q
}

// SetDepthListener registers a callback invoked with the new queue
// depth whenever it changes. Used by the diagnostics layer; must not
// block.
func (q *TaskQueue) SetDepthListener(fn func(int)) {
	q.mu.Lock()
	q.depthListener = fn
	q.mu.Unlock()
}

// Submit enqueues a task and returns its future. Never blocks. Tasks
// submitted after Shutdown complete immediately with ErrQueueClosed.
func (q *TaskQueue) Submit(task Task) *Result {
	result := &Result{done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		result.complete(ErrQueueClosed)
		return result
	}
	q.pending = append(q.pending, &queuedTask{task: task, result: result})
	q.notifyDepthLocked()
	q.cond.Signal()
	q.mu.Unlock()

	return result
}

// Depth returns the number of tasks not yet finished (queued plus the
// one running, if any). UIs use this to disable actions that assume a
// settled index.
func (q *TaskQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked()
}

func (q *TaskQueue) depthLocked() int {
	depth := len(q.pending)
	if q.running {
		depth++
	}
	return depth
}

func (q *TaskQueue) notifyDepthLocked() {
	if q.depthListener != nil {
		q.depthListener(q.depthLocked())
	}
}

// Shutdown stops the queue: no new tasks are accepted, queued tasks
// are drained, and if the drain exceeds half the timeout the running
// task's context is cancelled. Returns after the worker exits or the
// timeout elapses, whichever is first.
func (q *TaskQueue) Shutdown(timeout time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-time.After(timeout / 2):
		// Drain is taking too long; cancel outstanding work.
		q.cancel()
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout / 2):
		return fmt.Errorf("task queue did not stop within %v", timeout)
	}
}

// worker drains the queue until Shutdown.
func (q *TaskQueue) worker() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.running = true
		q.mu.Unlock()

		start := time.Now()
		err := next.task.Run(q.ctx)
		if err != nil {
			q.logger.Printf("Task %s failed after %v: %v", next.task.Name(), time.Since(start).Round(time.Millisecond), err)
		}
		next.result.complete(err)

		q.mu.Lock()
		q.running = false
		q.notifyDepthLocked()
		q.mu.Unlock()
	}
}
