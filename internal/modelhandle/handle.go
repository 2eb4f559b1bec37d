// Package modelhandle provides a process-wide, lazily initialized handle to an
// expensive model or client. Concurrent first users share one initialization;
// once loaded the value is shared read-only.
package modelhandle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader builds the underlying value. It runs at most once concurrently and
// never again after a success.
type Loader[T any] func(ctx context.Context) (T, error)

// Handle guards a lazily loaded value.
type Handle[T any] struct {
	name        string
	unavailable error
	load        Loader[T]

	group singleflight.Group
	mu    sync.RWMutex
	ready bool
	value T
	loads atomic.Int64
}

// New returns a handle named name. Load failures are wrapped with
// unavailable so callers can classify them with errors.Is.
func New[T any](name string, unavailable error, load Loader[T]) *Handle[T] {
	return &Handle[T]{name: name, unavailable: unavailable, load: load}
}

// Get returns the loaded value, initializing it on first use. A failed load
// is not cached; the next call retries.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	if v, ok := h.loaded(); ok {
		return v, nil
	}

	ch := h.group.DoChan(h.name, func() (interface{}, error) {
		if v, ok := h.loaded(); ok {
			return v, nil
		}
		h.loads.Add(1)
		// Detached so one caller's cancellation does not fail the others.
		v, err := h.safeLoad(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.value, h.ready = v, true
		h.mu.Unlock()
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, fmt.Errorf("%w: %s: %v", h.unavailable, h.name, res.Err)
		}
		return res.Val.(T), nil
	}
}

// Warm loads the value eagerly, typically at startup.
func (h *Handle[T]) Warm(ctx context.Context) error {
	_, err := h.Get(ctx)
	return err
}

// Loads reports how many times the loader has run.
func (h *Handle[T]) Loads() int64 {
	return h.loads.Load()
}

// Name identifies the handle in logs.
func (h *Handle[T]) Name() string {
	return h.name
}

// safeLoad runs the loader and reports a panic as a load failure.
func (h *Handle[T]) safeLoad(ctx context.Context) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("loader panicked: %v", r)
		}
	}()
	return h.load(ctx)
}

func (h *Handle[T]) loaded() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.value, h.ready
}
