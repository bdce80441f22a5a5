// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ManuGH/vrlink/internal/connection"
	"github.com/ManuGH/vrlink/internal/events"
	"github.com/ManuGH/vrlink/internal/lifecycle"
	vrlog "github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/metrics"
	"github.com/ManuGH/vrlink/internal/packet"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/ManuGH/vrlink/internal/stats"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

// Default play-area bounds applied on request at driver-ready, in meters.
const (
	DefaultChaperoneWidth  float32 = 2.0
	DefaultChaperoneHeight float32 = 2.0
)

// Adapter names, used as metric labels and log fields.
const (
	AdapterLog               = "log"
	AdapterLogPeriodically   = "log_periodically"
	AdapterInitializeDecoder = "initialize_decoder"
	AdapterVideoSend         = "video_send"
	AdapterHapticsSend       = "haptics_send"
	AdapterDriverReadyIdle   = "driver_ready_idle"
	AdapterShutdownRuntime   = "shutdown_runtime"
	AdapterPathStringToHash  = "path_string_to_hash"
	AdapterReportPresent     = "report_present"
	AdapterReportComposed    = "report_composed"
	AdapterReportEncoded     = "report_encoded"
	AdapterReportFECFailure  = "report_fec_failure"
)

// TaskRunner hosts background goroutines.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error) error
}

// Shutdowner runs the immediate shutdown sequence.
type Shutdowner interface {
	Shutdown(trigger lifecycle.Trigger) error
}

// Chaperone sets the play-area bounds. It must not run on the native
// thread that delivered driver-ready.
type Chaperone interface {
	SetChaperone(width, height float32)
}

// Emitter receives the driver-ready event.
type Emitter interface {
	Emit(t events.Type, sessionID string)
}

// Deps contains dependencies required by the Adapter.
type Deps struct {
	Logger    zerolog.Logger
	State     *State
	Runtime   TaskRunner
	Lifecycle Shutdowner

	// Loop is the handshake loop started by driver-ready
	Loop func(ctx context.Context) error

	// Chaperone is optional
	Chaperone Chaperone

	// Events is optional
	Events Emitter

	// PeriodicInterval defaults to log.DefaultPeriodicInterval
	PeriodicInterval time.Duration
}

var (
	errMissingState     = errors.New("state is required")
	errMissingRuntime   = errors.New("task runner is required")
	errMissingLifecycle = errors.New("lifecycle is required")
	errMissingLoop      = errors.New("handshake loop is required")
)

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	switch {
	case d.State == nil:
		return errMissingState
	case d.Runtime == nil:
		return errMissingRuntime
	case d.Lifecycle == nil:
		return errMissingLifecycle
	case d.Loop == nil:
		return errMissingLoop
	}
	return nil
}

// Adapter implements the native callback table.
type Adapter struct {
	deps     Deps
	state    *State
	logger   zerolog.Logger
	native   zerolog.Logger
	periodic *vrlog.Periodic

	loopRunning atomic.Bool
}

// NewAdapter creates the adapter.
func NewAdapter(deps Deps) (*Adapter, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	native := deps.Logger.With().Str(vrlog.FieldComponent, "native").Logger()
	return &Adapter{
		deps:     deps,
		state:    deps.State,
		logger:   deps.Logger.With().Str(vrlog.FieldComponent, "bridge").Logger(),
		native:   native,
		periodic: vrlog.NewPeriodic(native, deps.PeriodicInterval),
	}, nil
}

// LogError forwards a native error line.
func (a *Adapter) LogError(msg string) {
	defer a.recoverBoundary(AdapterLog)
	a.native.Error().Msg(msg)
}

// LogWarn forwards a native warning.
func (a *Adapter) LogWarn(msg string) {
	defer a.recoverBoundary(AdapterLog)
	a.native.Warn().Msg(msg)
}

// LogInfo forwards a native info line.
func (a *Adapter) LogInfo(msg string) {
	defer a.recoverBoundary(AdapterLog)
	a.native.Info().Msg(msg)
}

// LogDebug forwards a native debug line.
func (a *Adapter) LogDebug(msg string) {
	defer a.recoverBoundary(AdapterLog)
	a.native.Debug().Msg(msg)
}

// LogPeriodically logs "tag: message" at most once per interval per tag.
func (a *Adapter) LogPeriodically(tag, msg string) {
	defer a.recoverBoundary(AdapterLogPeriodically)
	a.periodic.Warn(tag, msg)
}

// InitializeDecoder mirrors the decoder configuration and queues it as a
// control packet. config is borrowed and copied before returning.
func (a *Adapter) InitializeDecoder(config []byte) {
	defer a.recoverBoundary(AdapterInitializeDecoder)
	metrics.IncAdapterCall(AdapterInitializeDecoder)

	mirror, ok := a.state.Registry.Mirror()
	if !ok {
		return
	}
	owned := bytes.Clone(config)
	if owned == nil {
		owned = []byte{}
	}
	if mirror.Subscribers() > 0 {
		mirror.Publish(owned)
	}
	a.dropped(registry.StreamControl, a.state.Registry.SendControl(packet.InitializeDecoder(owned)))
}

// VideoSend mirrors one encoded packet, queues it and reports its size.
// payload is borrowed and copied before returning.
func (a *Adapter) VideoSend(header packet.VideoFrameHeader, payload []byte) {
	defer a.recoverBoundary(AdapterVideoSend)
	metrics.IncAdapterCall(AdapterVideoSend)

	mirror, ok := a.state.Registry.Mirror()
	if !ok {
		return
	}
	owned := bytes.Clone(payload)
	if owned == nil {
		owned = []byte{}
	}
	if mirror.Subscribers() > 0 {
		mirror.Publish(owned)
	}

	err := a.state.Registry.SendVideo(packet.VideoPacket{Header: header, Payload: owned})
	if errors.Is(err, registry.ErrNoSession) {
		// torn down between lookup and send
		return
	}
	a.dropped(registry.StreamVideo, err)
	a.state.Stats.With(func(s *stats.Sink) { s.ReportVideoPacket(len(owned)) })
}

// HapticsSend queues a haptics command.
func (a *Adapter) HapticsSend(path uint64, durationSeconds, frequency, amplitude float32) {
	defer a.recoverBoundary(AdapterHapticsSend)
	metrics.IncAdapterCall(AdapterHapticsSend)

	err := a.state.Registry.SendHaptics(packet.Haptics{
		Path:      path,
		Duration:  packet.DurationFromSeconds(durationSeconds),
		Frequency: frequency,
		Amplitude: amplitude,
	})
	if !errors.Is(err, registry.ErrNoSession) {
		a.dropped(registry.StreamHaptics, err)
	}
}

// DriverReadyIdle marks the driver live and starts the handshake loop once.
// The chaperone call runs on its own goroutine, never on the caller.
func (a *Adapter) DriverReadyIdle(setDefaultChaperone bool) {
	defer a.recoverBoundary(AdapterDriverReadyIdle)
	metrics.IncAdapterCall(AdapterDriverReadyIdle)

	a.state.Liveness.Store(true)
	if a.deps.Events != nil {
		a.deps.Events.Emit(events.DriverReady, "")
	}

	if setDefaultChaperone && a.deps.Chaperone != nil {
		go func() {
			defer a.recoverBoundary(AdapterDriverReadyIdle)
			a.deps.Chaperone.SetChaperone(DefaultChaperoneWidth, DefaultChaperoneHeight)
		}()
	}

	if !a.loopRunning.CompareAndSwap(false, true) {
		a.logger.Debug().
			Str(vrlog.FieldEvent, "handshake.already_running").
			Msg("handshake loop already running")
		return
	}
	err := a.deps.Runtime.Go("handshake", func(ctx context.Context) error {
		defer a.loopRunning.Store(false)
		if err := a.deps.Loop(ctx); err != nil && !errors.Is(err, connection.ErrInterrupted) {
			a.logger.Warn().
				Err(err).
				Str(vrlog.FieldEvent, "handshake.closed").
				Msg("connection loop closed")
		}
		return nil
	})
	if err != nil {
		a.loopRunning.Store(false)
		a.logger.Warn().
			Err(err).
			Str(vrlog.FieldEvent, "handshake.start_failed").
			Msg("handshake loop not started")
	}
}

// ShutdownRuntime runs the immediate shutdown sequence on the caller.
func (a *Adapter) ShutdownRuntime() {
	defer a.recoverBoundary(AdapterShutdownRuntime)
	metrics.IncAdapterCall(AdapterShutdownRuntime)

	if err := a.deps.Lifecycle.Shutdown(lifecycle.TriggerShutdown); err != nil {
		a.logger.Debug().Err(err).Msg("shutdown requested twice")
	}
}

// PathStringToHash maps an input path string to a stable 64-bit id.
func (a *Adapter) PathStringToHash(path string) (hash uint64) {
	defer a.recoverBoundary(AdapterPathStringToHash)
	return HashPath(path)
}

// HashPath is the hash behind PathStringToHash. It is stable across
// processes and builds.
func HashPath(path string) uint64 {
	return xxhash.Sum64String(path)
}

// ReportPresent records a compositor present timestamp in nanoseconds.
func (a *Adapter) ReportPresent(timestampNs uint64) {
	defer a.recoverBoundary(AdapterReportPresent)
	ts := nanos(timestampNs)
	a.state.Stats.With(func(s *stats.Sink) { s.ReportFramePresent(ts) })
}

// ReportComposed records a composition-complete timestamp in nanoseconds.
func (a *Adapter) ReportComposed(timestampNs uint64) {
	defer a.recoverBoundary(AdapterReportComposed)
	ts := nanos(timestampNs)
	a.state.Stats.With(func(s *stats.Sink) { s.ReportFrameComposed(ts) })
}

// ReportEncoded records an encode-complete timestamp in nanoseconds.
func (a *Adapter) ReportEncoded(timestampNs uint64) {
	defer a.recoverBoundary(AdapterReportEncoded)
	ts := nanos(timestampNs)
	a.state.Stats.With(func(s *stats.Sink) { s.ReportFrameEncoded(ts) })
}

// ReportFECFailure records an FEC failure percentage (0-100).
func (a *Adapter) ReportFECFailure(percentage int32) {
	defer a.recoverBoundary(AdapterReportFECFailure)
	if percentage < 0 {
		percentage = 0
	}
	pct := uint32(percentage)
	a.state.Stats.With(func(s *stats.Sink) { s.ReportFECFailure(pct) })
}

func (a *Adapter) dropped(stream string, err error) {
	if err == nil {
		return
	}
	// Drops are counted by the registry; a full queue is worth a line.
	if errors.Is(err, registry.ErrQueueFull) {
		a.periodic.Warn("queue_full_"+stream, "transport is not draining "+stream)
	}
}

func nanos(ns uint64) time.Duration {
	const maxNanos = uint64(1<<63 - 1)
	if ns > maxNanos {
		ns = maxNanos
	}
	return time.Duration(ns)
}
