package workerpool

import (
	"context"
	"errors"
	"time"
)

var (
	ErrWorkerPoolStopped = errors.New("worker pool is stopped")
	ErrTaskPanicked      = errors.New("task panicked")
)

// TaskFunc is the unit of work executed by the pool. The context it receives
// carries the pool, so handles awaited inside it let the worker help with
// queued tasks instead of idling.
type TaskFunc[T any] func(ctx context.Context) (T, error)

// Task is a queued submission. The typed result lives in the Handle returned
// by Submit; the task only knows how to run and how to fail.
type Task struct {
	ID   string
	Name string

	ctx  context.Context
	run  func(ctx context.Context) error
	fail func(err error)
}

type Result struct {
	TaskID    string
	Name      string
	Error     error
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

type WorkerPoolConfig struct {
	// MaxWorkers bounds the number of worker goroutines. Zero means the pool
	// grows whenever queued work exceeds idle workers.
	MaxWorkers int
	// IdleTimeout is how long an idle worker lingers before exiting.
	IdleTimeout time.Duration
}

type WorkerPoolStats struct {
	Workers        int
	IdleWorkers    int
	ActiveTasks    int
	PeakWorkers    int
	PeakActive     int
	MaxWorkers     int
	TotalTasks     int64
	CompletedTasks int64
	FailedTasks    int64
	QueueLength    int
	Uptime         time.Duration
	IsRunning      bool
}
