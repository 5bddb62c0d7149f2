package driven

import (
	"context"
	"time"
)

// TaskType identifies the kind of background work.
type TaskType string

const (
	TaskDocumentProcessing TaskType = "document_processing"
	TaskBatchEmbedding     TaskType = "batch_embedding"
	TaskReprocessing       TaskType = "document_reprocessing"
)

// TaskStatus is the lifecycle of one queued task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskState is a point-in-time snapshot of a queued task.
type TaskState struct {
	ID          string
	Type        TaskType
	Status      TaskStatus
	Error       string
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// TaskFunc is the unit of background work.
type TaskFunc func(ctx context.Context) error

// WorkQueue dispatches background tasks. The in-memory default is
// best-effort only: queued-but-not-started work is lost on crash. A
// durable broker-backed implementation can be substituted without
// touching pipeline logic.
type WorkQueue interface {
	// Enqueue schedules fn for asynchronous execution and returns the
	// task ID for status tracking.
	Enqueue(ctx context.Context, taskType TaskType, fn TaskFunc) (string, error)

	// Status returns the current state of a task, or false if unknown.
	Status(id string) (*TaskState, bool)

	// Ack removes a terminal task's tracking record.
	Ack(id string) error

	// Retry re-enqueues a failed task under a new ID.
	Retry(ctx context.Context, id string) (string, error)

	// Close waits for running tasks to finish and stops the queue.
	Close() error
}
