// Package memory provides a best-effort in-process work queue. Tasks
// enqueued but not yet started are lost on crash; callers needing
// durability substitute a broker-backed implementation of the same
// port.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tutorstack/docproc/internal/core/ports/driven"
	"github.com/tutorstack/docproc/internal/logger"
)

// Ensure Queue implements the interface.
var _ driven.WorkQueue = (*Queue)(nil)

// DefaultWorkers is the number of task runners.
const DefaultWorkers = 2

// task pairs a tracked state with its work function.
type task struct {
	id string
	fn driven.TaskFunc
}

// Queue is an in-memory implementation of driven.WorkQueue.
type Queue struct {
	mu     sync.Mutex
	states map[string]*driven.TaskState
	fns    map[string]driven.TaskFunc

	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed bool
}

// Option configures a Queue.
type Option func(*queueConfig)

type queueConfig struct {
	workers int
	buffer  int
}

// WithWorkers sets the number of concurrent task runners.
func WithWorkers(n int) Option {
	return func(c *queueConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewQueue creates and starts an in-memory work queue.
func NewQueue(opts ...Option) *Queue {
	cfg := queueConfig{workers: DefaultWorkers, buffer: 64}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		states: make(map[string]*driven.TaskState),
		fns:    make(map[string]driven.TaskFunc),
		tasks:  make(chan task, cfg.buffer),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules fn for asynchronous execution.
func (q *Queue) Enqueue(_ context.Context, taskType driven.TaskType, fn driven.TaskFunc) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", fmt.Errorf("queue is closed")
	}

	id := uuid.NewString()
	q.states[id] = &driven.TaskState{
		ID:         id,
		Type:       taskType,
		Status:     driven.TaskPending,
		EnqueuedAt: time.Now().UTC(),
	}
	q.fns[id] = fn
	q.mu.Unlock()

	select {
	case q.tasks <- task{id: id, fn: fn}:
		return id, nil
	case <-q.ctx.Done():
		return "", fmt.Errorf("queue is closed")
	}
}

// Status returns a snapshot of the task's current state.
func (q *Queue) Status(id string) (*driven.TaskState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, ok := q.states[id]
	if !ok {
		return nil, false
	}
	copied := *state
	return &copied, true
}

// Ack removes a terminal task's tracking record.
func (q *Queue) Ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, ok := q.states[id]
	if !ok {
		return fmt.Errorf("unknown task %s", id)
	}
	if state.Status != driven.TaskCompleted && state.Status != driven.TaskFailed {
		return fmt.Errorf("task %s is %s, not terminal", id, state.Status)
	}
	delete(q.states, id)
	delete(q.fns, id)
	return nil
}

// Retry re-enqueues a failed task under a new ID.
func (q *Queue) Retry(ctx context.Context, id string) (string, error) {
	q.mu.Lock()
	state, ok := q.states[id]
	if !ok {
		q.mu.Unlock()
		return "", fmt.Errorf("unknown task %s", id)
	}
	if state.Status != driven.TaskFailed {
		q.mu.Unlock()
		return "", fmt.Errorf("task %s is %s, only failed tasks retry", id, state.Status)
	}
	taskType := state.Type
	fn := q.fns[id]
	delete(q.states, id)
	delete(q.fns, id)
	q.mu.Unlock()

	return q.Enqueue(ctx, taskType, fn)
}

// Close stops accepting tasks and waits for running ones to finish.
// Queued-but-unstarted tasks are dropped.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case t := <-q.tasks:
			q.run(t)
		}
	}
}

func (q *Queue) run(t task) {
	now := time.Now().UTC()
	q.setState(t.id, func(s *driven.TaskState) {
		s.Status = driven.TaskRunning
		s.StartedAt = &now
	})

	err := t.fn(q.ctx)

	done := time.Now().UTC()
	q.setState(t.id, func(s *driven.TaskState) {
		s.CompletedAt = &done
		if err != nil {
			s.Status = driven.TaskFailed
			s.Error = err.Error()
		} else {
			s.Status = driven.TaskCompleted
		}
	})
	if err != nil {
		logger.Error("task %s failed: %v", t.id, err)
	}
}

func (q *Queue) setState(id string, mutate func(*driven.TaskState)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if state, ok := q.states[id]; ok {
		mutate(state)
	}
}
