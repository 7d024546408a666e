package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultIdleTimeout = 60 * time.Second

type WorkerPool struct {
	config        WorkerPoolConfig
	logger        *zap.Logger
	resultHandler func(Result)

	mu      sync.Mutex
	queue   []*Task
	wake    chan struct{}
	stopped bool

	workers      int
	idle         int
	active       int
	peakWorkers  int
	peakActive   int
	nextWorkerID int

	// Metrics
	totalTasks     int64
	completedTasks int64
	failedTasks    int64
	startTime      time.Time

	wg       sync.WaitGroup
	stopOnce sync.Once
}

type Option func(*WorkerPool)

func WithLogger(l *zap.Logger) Option {
	return func(wp *WorkerPool) {
		if l != nil {
			wp.logger = l
		}
	}
}

// WithResultHandler registers a hook invoked by the executing worker after
// every task, once its handle has been resolved.
func WithResultHandler(handler func(Result)) Option {
	return func(wp *WorkerPool) { wp.resultHandler = handler }
}

// NewWorkerPool creates a pool with the specified configuration. Workers are
// spawned lazily on submission; there is nothing to start.
func NewWorkerPool(config WorkerPoolConfig, opts ...Option) *WorkerPool {
	if config.MaxWorkers < 0 {
		config.MaxWorkers = 0
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	wp := &WorkerPool{
		config:    config,
		logger:    zap.NewNop(),
		wake:      make(chan struct{}),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Submit queues fn on the pool and returns a handle to its result. It never
// waits for execution to start and is safe to call from inside a running task.
func Submit[T any](ctx context.Context, wp *WorkerPool, name string, fn TaskFunc[T]) (*Handle[T], error) {
	h := newHandle[T](wp)
	task := &Task{
		ID:   h.id,
		Name: name,
		ctx:  ctx,
		run: func(ctx context.Context) error {
			value, err := fn(ctx)
			h.resolve(value, err)
			return err
		},
		fail: func(err error) {
			var zero T
			h.resolve(zero, err)
		},
	}

	if err := wp.enqueue(task); err != nil {
		return nil, err
	}
	return h, nil
}

func (wp *WorkerPool) enqueue(task *Task) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrWorkerPoolStopped
	}

	wp.queue = append(wp.queue, task)
	wp.totalTasks++
	wp.broadcastLocked()

	if len(wp.queue) > wp.idle && (wp.config.MaxWorkers == 0 || wp.workers < wp.config.MaxWorkers) {
		wp.spawnLocked()
	}
	return nil
}

func (wp *WorkerPool) spawnLocked() {
	wp.nextWorkerID++
	wp.workers++
	if wp.workers > wp.peakWorkers {
		wp.peakWorkers = wp.workers
	}

	worker := &Worker{
		ID:     wp.nextWorkerID,
		pool:   wp,
		logger: wp.logger,
	}
	wp.wg.Add(1)
	go worker.start()
}

// broadcastLocked wakes every goroutine parked on the current wake channel.
func (wp *WorkerPool) broadcastLocked() {
	close(wp.wake)
	wp.wake = make(chan struct{})
}

func (wp *WorkerPool) popLocked() *Task {
	if len(wp.queue) == 0 {
		return nil
	}
	task := wp.queue[0]
	wp.queue[0] = nil
	wp.queue = wp.queue[1:]
	return task
}

// popNewestLocked takes the most recently queued task. A helping caller is
// usually waiting on work it just submitted, so this keeps nesting bounded by
// the depth of the task tree instead of its width.
func (wp *WorkerPool) popNewestLocked() *Task {
	n := len(wp.queue)
	if n == 0 {
		return nil
	}
	task := wp.queue[n-1]
	wp.queue[n-1] = nil
	wp.queue = wp.queue[:n-1]
	return task
}

// help runs queued tasks on the calling goroutine until done is closed.
func (wp *WorkerPool) help(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		default:
		}

		wp.mu.Lock()
		task := wp.popNewestLocked()
		wake := wp.wake
		wp.mu.Unlock()

		if task != nil {
			wp.execute(task)
			continue
		}

		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-wake:
		}
	}
}

func (wp *WorkerPool) execute(task *Task) {
	wp.mu.Lock()
	wp.active++
	if wp.active > wp.peakActive {
		wp.peakActive = wp.active
	}
	wp.mu.Unlock()

	startTime := time.Now()
	err := wp.run(task)
	endTime := time.Now()

	wp.mu.Lock()
	wp.active--
	if err != nil {
		wp.failedTasks++
	} else {
		wp.completedTasks++
	}
	wp.mu.Unlock()

	if wp.resultHandler != nil {
		wp.resultHandler(Result{
			TaskID:    task.ID,
			Name:      task.Name,
			Error:     err,
			StartTime: startTime,
			EndTime:   endTime,
			Duration:  endTime.Sub(startTime),
		})
	}
}

func (wp *WorkerPool) run(task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrTaskPanicked, task.Name, r)
			wp.logger.Error("task panicked",
				zap.String("task_id", task.ID),
				zap.String("task", task.Name),
				zap.Any("panic", r))
			task.fail(err)
		}
	}()

	ctx := task.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return task.run(withPool(ctx, wp))
}

// Shutdown stops accepting submissions. Running and queued tasks still
// complete and their handles may still be awaited. It is idempotent.
func (wp *WorkerPool) Shutdown() {
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		defer wp.mu.Unlock()

		wp.stopped = true
		wp.broadcastLocked()
		wp.logger.Debug("worker pool shutting down",
			zap.Int("workers", wp.workers),
			zap.Int("queued", len(wp.queue)))
	})
}

// Wait blocks until every worker has exited. Workers only exit for good after
// Shutdown, so calling Wait on a running pool returns when ctx is done.
func (wp *WorkerPool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for worker pool teardown: %w", ctx.Err())
	}
}

// Stop shuts the pool down and waits for outstanding tasks to drain.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.Shutdown()
	if err := wp.Wait(ctx); err != nil {
		return err
	}
	wp.logger.Debug("worker pool shutdown completed")
	return nil
}

func (wp *WorkerPool) GetStats() WorkerPoolStats {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	return WorkerPoolStats{
		Workers:        wp.workers,
		IdleWorkers:    wp.idle,
		ActiveTasks:    wp.active,
		PeakWorkers:    wp.peakWorkers,
		PeakActive:     wp.peakActive,
		MaxWorkers:     wp.config.MaxWorkers,
		TotalTasks:     wp.totalTasks,
		CompletedTasks: wp.completedTasks,
		FailedTasks:    wp.failedTasks,
		QueueLength:    len(wp.queue),
		Uptime:         time.Since(wp.startTime),
		IsRunning:      !wp.stopped,
	}
}
