// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultStopTimeout bounds how long Stop waits for tasks to return.
const DefaultStopTimeout = 5 * time.Second

// Runtime hosts the driver's long-running goroutines. Stopping it cancels
// their shared context and waits for them; registry and statistics state
// live outside and survive.
type Runtime struct {
	logger      zerolog.Logger
	stopTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu      sync.Mutex
	stopped bool
}

// NewRuntime creates a running runtime.
func NewRuntime(logger zerolog.Logger, stopTimeout time.Duration) *Runtime {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		logger:      logger.With().Str("component", "runtime").Logger(),
		stopTimeout: stopTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is canceled when the runtime stops.
func (r *Runtime) Context() context.Context {
	return r.ctx
}

// Go runs fn on a new goroutine owned by the runtime. Errors other than
// context cancellation are logged. It returns ErrRuntimeStopped once Stop
// has been called.
func (r *Runtime) Go(name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRuntimeStopped
	}
	r.group.Go(func() error {
		err := fn(r.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn().
				Err(err).
				Str("task", name).
				Str("event", "runtime.task_failed").
				Msg("runtime task returned error")
		}
		return nil
	})
	return nil
}

// Stopped reports whether Stop was called.
func (r *Runtime) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Stop cancels every task and waits up to the stop timeout for them to
// return. It cannot fail: a timeout is logged and the stragglers are left
// to observe their canceled context.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		_ = r.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Debug().Str("event", "runtime.stopped").Msg("runtime stopped")
	case <-time.After(r.stopTimeout):
		r.logger.Warn().
			Dur("timeout", r.stopTimeout).
			Str("event", "runtime.stop_timeout").
			Msg("runtime tasks still running after stop timeout")
	}
}
