package usecase

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/example/emotion-sense/internal/emotion"
)

// ErrJobPanicked reports a pool job that panicked instead of returning.
var ErrJobPanicked = errors.New("pipeline job panicked")

// WorkerPool bounds how many decode/inference jobs run at once.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool returns a pool with size slots; size below one is treated as one.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size))}
}

// Run executes fn on a pool slot and waits for it or for ctx. A job that
// outlives ctx keeps its slot until it returns; its result is discarded.
func (p *WorkerPool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return contextError(ctx, err)
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrJobPanicked, r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if ctx.Err() != nil {
			return contextError(ctx, ctx.Err())
		}
		return err
	case <-ctx.Done():
		return contextError(ctx, ctx.Err())
	}
}

func contextError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", emotion.ErrTimeout, err)
	}
	return err
}
