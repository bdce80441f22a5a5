// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lifecycle sequences driver shutdown and restart.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/vrlink/internal/events"
	"github.com/ManuGH/vrlink/internal/metrics"
	"github.com/ManuGH/vrlink/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// RestartGrace is the fixed pause between the restart notification and the
// hard teardown. It gives an in-flight transport a chance to flush the
// restart packet; delivery is not confirmed.
const RestartGrace = 100 * time.Millisecond

// State is the coordinator state.
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Trigger names the path that started a shutdown.
type Trigger string

const (
	TriggerShutdown       Trigger = "shutdown"
	TriggerDriverShutdown Trigger = "driver_shutdown"
	TriggerRestart        Trigger = "restart"
	TriggerUpdate         Trigger = "update"
)

// NativeDriver is the native pipeline's quit entry point.
type NativeDriver interface {
	ShutdownSteamVR()
}

// Relauncher performs the post-teardown relaunch actions.
type Relauncher interface {
	RestartSteamVR() error
	ApplicationUpdate() error
}

// Window is a front-end surface closed during shutdown.
type Window interface {
	Close() error
}

// Emitter receives the server-quitting notification.
type Emitter interface {
	Emit(t events.Type, sessionID string)
}

// Deps contains dependencies required by the Coordinator.
type Deps struct {
	// Logger is the structured logger for the coordinator
	Logger zerolog.Logger

	// Liveness is the flag polled by long-running loops
	Liveness *atomic.Bool

	// Restart wakes loops that must flush a restart packet
	Restart *Notifier

	// Runtime hosts the loops stopped in the last shutdown step
	Runtime *Runtime

	// Events is optional
	Events Emitter

	// Native is optional; without it the driver-shutdown step is skipped
	Native NativeDriver

	// Launcher is optional; without it relaunch actions are skipped
	Launcher Relauncher
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.Liveness == nil {
		return ErrMissingLiveness
	}
	if d.Restart == nil {
		return ErrMissingNotifier
	}
	if d.Runtime == nil {
		return ErrMissingRuntime
	}
	return nil
}

// Coordinator owns the Running -> ShuttingDown -> Stopped transitions.
type Coordinator struct {
	deps   Deps
	logger zerolog.Logger
	grace  time.Duration

	mu     sync.Mutex
	state  State
	window Window

	driverShutdown atomic.Bool
}

// NewCoordinator creates a coordinator in the Running state.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &Coordinator{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "lifecycle").Logger(),
		grace:  RestartGrace,
		state:  StateRunning,
	}, nil
}

// SetWindow registers the front-end closed in the third shutdown step.
func (c *Coordinator) SetWindow(w Window) {
	c.mu.Lock()
	c.window = w
	c.mu.Unlock()
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) transition(from, to State, trigger Trigger) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	metrics.IncLifecycleTransition(to.String(), string(trigger))
	return true
}

// Shutdown runs the teardown sequence on the calling goroutine:
// quitting event, liveness cleared, window closed, runtime stopped.
// A second call returns ErrAlreadyStopped without doing anything.
func (c *Coordinator) Shutdown(trigger Trigger) error {
	if !c.transition(StateRunning, StateShuttingDown, trigger) {
		return ErrAlreadyStopped
	}
	start := time.Now()
	_, span := telemetry.Tracer("vrlink/lifecycle").Start(context.Background(), "lifecycle.shutdown",
		trace.WithAttributes(telemetry.LifecycleAttributes(string(trigger))...))
	defer span.End()
	c.logger.Info().
		Str("trigger", string(trigger)).
		Str("event", "lifecycle.shutdown_started").
		Msg("shutting down driver runtime")

	// 1. Observers (best-effort)
	if c.deps.Events != nil {
		c.emitQuitting()
	}

	// 2. Loops observe false on their next check
	c.deps.Liveness.Store(false)

	// 3. Front-end
	c.mu.Lock()
	w := c.window
	c.window = nil
	c.mu.Unlock()
	if w != nil {
		if err := w.Close(); err != nil {
			span.RecordError(err)
			c.logger.Warn().
				Err(err).
				Str("event", "lifecycle.window_close_failed").
				Msg("failed to close front-end window")
		}
	}

	// 4. Cancels every hosted task
	c.deps.Runtime.Stop()

	c.transition(StateShuttingDown, StateStopped, trigger)
	c.logger.Info().
		Str("trigger", string(trigger)).
		Dur("duration", time.Since(start)).
		Str("event", "lifecycle.shutdown_completed").
		Msg("driver runtime stopped")
	return nil
}

func (c *Coordinator) emitQuitting() {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error().
				Interface("panic_value", rec).
				Str("event", "lifecycle.emit_failed").
				Msg("server quitting event failed")
		}
	}()
	c.deps.Events.Emit(events.ServerQuitting, "")
}

// NotifyShutdownDriver asks the native driver to quit. It returns at once;
// the returned channel is closed when the background sequence finished.
func (c *Coordinator) NotifyShutdownDriver() <-chan struct{} {
	return c.driverSequence(TriggerDriverShutdown, nil)
}

// NotifyRestartDriver shuts the driver down and relaunches it.
func (c *Coordinator) NotifyRestartDriver() <-chan struct{} {
	return c.driverSequence(TriggerRestart, func(l Relauncher) error { return l.RestartSteamVR() })
}

// NotifyApplicationUpdate shuts the driver down and starts the updater.
func (c *Coordinator) NotifyApplicationUpdate() <-chan struct{} {
	return c.driverSequence(TriggerUpdate, func(l Relauncher) error { return l.ApplicationUpdate() })
}

func (c *Coordinator) driverSequence(trigger Trigger, relaunch func(Relauncher) error) <-chan struct{} {
	done := make(chan struct{})
	if !c.driverShutdown.CompareAndSwap(false, true) {
		c.logger.Debug().
			Str("trigger", string(trigger)).
			Msg("driver shutdown already in progress")
		close(done)
		return done
	}

	go func() {
		defer close(done)

		// Fired while liveness is still true so a send loop can queue a restart packet.
		c.deps.Restart.NotifyWaiters()
		time.Sleep(c.grace)

		if err := c.Shutdown(trigger); err != nil {
			c.logger.Debug().Err(err).Msg("runtime already stopped before driver shutdown")
		}

		if c.deps.Native != nil {
			c.deps.Native.ShutdownSteamVR()
		}

		if relaunch != nil && c.deps.Launcher != nil {
			if err := relaunch(c.deps.Launcher); err != nil {
				c.logger.Error().
					Err(err).
					Str("trigger", string(trigger)).
					Str("event", "lifecycle.relaunch_failed").
					Msg("relaunch action failed")
			}
		}
	}()
	return done
}
