package workerpool

import (
	"time"

	"go.uber.org/zap"
)

type Worker struct {
	ID     int
	pool   *WorkerPool
	logger *zap.Logger
}

func (w *Worker) start() {
	defer w.pool.wg.Done()

	for {
		task, ok := w.next()
		if !ok {
			return
		}
		w.pool.execute(task)
	}
}

// next returns the next queued task, parking the worker while the queue is
// empty. It reports false once the worker should exit: the pool was shut
// down and drained, or the worker stayed idle past the idle timeout.
func (w *Worker) next() (*Task, bool) {
	wp := w.pool
	for {
		wp.mu.Lock()
		if task := wp.popLocked(); task != nil {
			wp.mu.Unlock()
			return task, true
		}
		if wp.stopped {
			wp.workers--
			wp.mu.Unlock()
			w.logger.Debug("worker exiting after shutdown", zap.Int("worker_id", w.ID))
			return nil, false
		}
		wp.idle++
		wake := wp.wake
		wp.mu.Unlock()

		timer := time.NewTimer(wp.config.IdleTimeout)
		expired := false
		select {
		case <-wake:
		case <-timer.C:
			expired = true
		}
		timer.Stop()

		wp.mu.Lock()
		wp.idle--
		if expired && len(wp.queue) == 0 {
			wp.workers--
			wp.mu.Unlock()
			w.logger.Debug("idle worker expired", zap.Int("worker_id", w.ID))
			return nil, false
		}
		wp.mu.Unlock()
	}
}
