// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package connection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ManuGH/vrlink/internal/events"
	"github.com/ManuGH/vrlink/internal/lifecycle"
	vrlog "github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/metrics"
	"github.com/ManuGH/vrlink/internal/packet"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/ManuGH/vrlink/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "vrlink/connection"

// DefaultRetryInterval is the pause after a recoverable handshake failure.
const DefaultRetryInterval = time.Second

// Deps contains dependencies required by the Loop.
type Deps struct {
	Logger     zerolog.Logger
	Registry   *registry.Registry
	Liveness   *atomic.Bool
	Disconnect *lifecycle.Notifier
	Restart    *lifecycle.Notifier
	Connector  Connector

	// Events is optional
	Events Emitter

	// RetryInterval defaults to DefaultRetryInterval
	RetryInterval time.Duration

	// NewSessionID defaults to uuid.NewString
	NewSessionID func() string
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Connector == nil {
		return ErrMissingConnector
	}
	if d.Registry == nil {
		return ErrMissingRegistry
	}
	if d.Liveness == nil {
		return ErrMissingLiveness
	}
	if d.Disconnect == nil || d.Restart == nil {
		return ErrMissingNotifier
	}
	return nil
}

// Loop discovers clients and installs one session at a time.
type Loop struct {
	deps   Deps
	logger zerolog.Logger
}

// NewLoop creates a handshake loop.
func NewLoop(deps Deps) (*Loop, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if deps.RetryInterval <= 0 {
		deps.RetryInterval = DefaultRetryInterval
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = uuid.NewString
	}
	return &Loop{
		deps:   deps,
		logger: deps.Logger.With().Str(vrlog.FieldComponent, "handshake").Logger(),
	}, nil
}

// Run loops until liveness is cleared (nil), ctx is canceled
// (ErrInterrupted) or negotiation fails fatally (the error).
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Str(vrlog.FieldEvent, "handshake.loop_started").Msg("handshake loop started")
	defer l.logger.Info().Str(vrlog.FieldEvent, "handshake.loop_stopped").Msg("handshake loop stopped")

	for l.deps.Liveness.Load() {
		if ctx.Err() != nil {
			return ErrInterrupted
		}

		restart, gen := l.deps.Restart.Wait()
		link, err := l.deps.Connector.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ErrInterrupted
			}
			if errors.Is(err, ErrFatal) {
				metrics.IncHandshake("fatal")
				return fmt.Errorf("negotiate client: %w", err)
			}
			metrics.IncHandshake("retry")
			l.logger.Warn().
				Err(err).
				Dur("retry_in", l.deps.RetryInterval).
				Str(vrlog.FieldEvent, "handshake.retry").
				Msg("client handshake failed, retrying")

			timer := time.NewTimer(l.deps.RetryInterval)
			select {
			case <-timer.C:
			case <-restart:
				timer.Stop()
			case <-ctx.Done():
				timer.Stop()
				return ErrInterrupted
			}
			continue
		}
		metrics.IncHandshake("success")

		// A restart fired during negotiation: the driver is going away.
		if l.deps.Restart.FiredSince(gen) || !l.deps.Liveness.Load() {
			_ = link.Close()
			continue
		}

		if err := l.serve(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) serve(ctx context.Context, link Link) error {
	id := l.deps.NewSessionID()
	logger := l.logger.With().
		Str(vrlog.FieldSessionID, id).
		Str(vrlog.FieldClient, link.Client()).
		Logger()

	disconnect, _ := l.deps.Disconnect.Wait()
	restart, _ := l.deps.Restart.Wait()

	rx, err := l.deps.Registry.Install(id)
	if err != nil {
		_ = link.Close()
		return fmt.Errorf("install session: %w", err)
	}
	logger.Info().Str(vrlog.FieldEvent, "session.installed").Msg("client session installed")
	l.emit(events.SessionConnected, id)

	sctx, span := telemetry.Tracer(tracerName).Start(vrlog.ContextWithSessionID(ctx, id), "session",
		trace.WithAttributes(telemetry.SessionAttributes(id, link.Client())...))
	defer span.End()

	sctx, cancel := context.WithCancel(sctx)
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- link.Serve(sctx, rx)
	}()

	var (
		serveErr error
		reason   string
	)
wait:
	for {
		select {
		case serveErr = <-served:
			served = nil
			reason = "client"
			break wait
		case <-disconnect:
			reason = "disconnect_requested"
			break wait
		case <-restart:
			if err := l.deps.Registry.SendControl(packet.Restart()); err != nil {
				logger.Warn().Err(err).Msg("restart packet not queued")
			}
			restart, _ = l.deps.Restart.Wait()
		case <-ctx.Done():
			reason = "shutdown"
			break wait
		}
	}

	cancel()
	if err := link.Close(); err != nil {
		logger.Debug().Err(err).Msg("link close failed")
	}
	if served != nil {
		serveErr = <-served
	}

	l.deps.Registry.Teardown()
	l.emit(events.SessionDisconnected, id)
	span.SetAttributes(attribute.String(telemetry.SessionReasonKey, reason))

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		span.RecordError(serveErr)
		span.SetStatus(codes.Error, "session ended with error")
		logger.Warn().
			Err(serveErr).
			Str("reason", reason).
			Str(vrlog.FieldEvent, "session.teardown").
			Msg("client session ended with error")
		return nil
	}
	logger.Info().
		Str("reason", reason).
		Str(vrlog.FieldEvent, "session.teardown").
		Msg("client session closed")
	return nil
}

func (l *Loop) emit(t events.Type, id string) {
	if l.deps.Events != nil {
		l.deps.Events.Emit(t, id)
	}
}
