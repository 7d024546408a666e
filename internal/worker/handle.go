package workerpool

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Handle is the eventual result of a submitted task. It is resolved exactly
// once by whichever goroutine executes the task.
type Handle[T any] struct {
	id    string
	pool  *WorkerPool
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newHandle[T any](pool *WorkerPool) *Handle[T] {
	return &Handle[T]{
		id:   uuid.NewString(),
		pool: pool,
		done: make(chan struct{}),
	}
}

func (h *Handle[T]) resolve(value T, err error) {
	h.once.Do(func() {
		h.value = value
		h.err = err
		close(h.done)
	})
}

// ID returns the identifier of the task behind this handle.
func (h *Handle[T]) ID() string {
	return h.id
}

// Done returns a channel that is closed once the task completed or failed.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Await blocks until the task resolves and returns its value or error.
// When called from inside a task of the same pool, the caller runs queued
// tasks while it waits, so a bounded pool cannot starve itself on nested work.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	default:
	}

	if p := poolFromContext(ctx); p != nil && p == h.pool {
		p.help(ctx, h.done)
	}

	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		select {
		case <-h.done:
			return h.value, h.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

type poolCtxKey struct{}

func withPool(ctx context.Context, p *WorkerPool) context.Context {
	if poolFromContext(ctx) == p {
		return ctx
	}
	return context.WithValue(ctx, poolCtxKey{}, p)
}

func poolFromContext(ctx context.Context) *WorkerPool {
	p, _ := ctx.Value(poolCtxKey{}).(*WorkerPool)
	return p
}
