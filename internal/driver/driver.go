// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package driver composes the process-wide driver: configuration, logging,
// shared state, runtime, lifecycle, native binding, handshake loop and the
// diagnostics server.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/vrlink/internal/bridge"
	"github.com/ManuGH/vrlink/internal/config"
	"github.com/ManuGH/vrlink/internal/connection"
	"github.com/ManuGH/vrlink/internal/diag"
	"github.com/ManuGH/vrlink/internal/events"
	"github.com/ManuGH/vrlink/internal/launcher"
	"github.com/ManuGH/vrlink/internal/lifecycle"
	"github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/native"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/ManuGH/vrlink/internal/telemetry"
	"github.com/ManuGH/vrlink/internal/transport/ws"
	"github.com/ManuGH/vrlink/internal/version"
	"github.com/rs/zerolog"
)

// Environment keys read before the configuration file is known.
const (
	EnvConfigPath = "VRLINK_CONFIG"
	EnvDriverDir  = "VRLINK_DRIVER_DIR"
)

const eventLogBuffer = 32

// Native is the loaded native pipeline.
type Native interface {
	Path() string
	Factory(interfaceName string) (uintptr, int32)
	SetChaperone(width, height float32)
	ShutdownSteamVR()
	RegisterCallbacks(cb native.Callbacks) error
}

// Options override how New builds the driver. The zero value loads
// everything from the environment.
type Options struct {
	ConfigPath string
	DriverDir  string

	// LogOutput defaults to stderr
	LogOutput io.Writer

	// Native skips opening the shared library when set
	Native Native

	// Connector replaces the websocket transport when set
	Connector connection.Connector
}

// Driver is the composed process. Build one with New.
type Driver struct {
	cfg       config.AppConfig
	holder    *config.Holder
	logger    zerolog.Logger
	state     *bridge.State
	runtime   *lifecycle.Runtime
	coord     *lifecycle.Coordinator
	adapter   *bridge.Adapter
	bus       *events.Bus
	native    Native
	connector connection.Connector
	diag      *diag.Server
	tracing   *telemetry.Provider
}

// New loads configuration and wires every component. Background tasks
// (diagnostics, config watch, event log) start at once; the handshake loop
// waits for driver-ready.
func New(ctx context.Context, opts Options) (*Driver, error) {
	loader := config.NewLoader(opts.ConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Output:  opts.LogOutput,
		Service: "vrlink",
		Version: version.Version,
	})
	logger := log.WithComponent("driver")

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEnabled,
		ServiceName:    "vrlink",
		ServiceVersion: version.Version,
		ExporterType:   cfg.TelemetryExporter,
		Endpoint:       cfg.TelemetryEndpoint,
		SamplingRate:   cfg.TelemetrySampling,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	d := &Driver{
		cfg:     cfg,
		holder:  config.NewHolder(cfg, loader),
		logger:  logger,
		state:   bridge.NewState(registry.Capacities{Control: cfg.ControlQueue, Video: cfg.VideoQueue, Haptics: cfg.HapticsQueue}),
		runtime: lifecycle.NewRuntime(log.WithComponent("runtime"), cfg.ShutdownTimeout),
		bus:     events.NewBus(),
		tracing: provider,
	}

	d.native = opts.Native
	if d.native == nil {
		lib, err := native.Open(native.LibraryPaths(cfg.NativeLibrary, driverDir(opts.DriverDir)))
		if err != nil {
			return nil, fmt.Errorf("open native library: %w", err)
		}
		d.native = lib
	}

	if err := d.wire(opts); err != nil {
		return nil, err
	}
	if err := d.native.RegisterCallbacks(d.adapter); err != nil && !errors.Is(err, native.ErrCallbacksRegistered) {
		return nil, fmt.Errorf("register callbacks: %w", err)
	}
	if err := d.start(); err != nil {
		return nil, err
	}

	logger.Info().
		Str(log.FieldLibrary, d.native.Path()).
		Str(log.FieldEvent, "driver.initialized").
		Str("version", version.Version).
		Msg("driver initialized")
	return d, nil
}

func (d *Driver) wire(opts Options) error {
	cfg := d.cfg

	var relaunch lifecycle.Relauncher
	if cfg.Launcher != "" {
		relaunch = launcher.New(cfg.Launcher)
	}
	coord, err := lifecycle.NewCoordinator(lifecycle.Deps{
		Logger:   log.WithComponent("lifecycle"),
		Liveness: d.state.Liveness,
		Restart:  d.state.Restart,
		Runtime:  d.runtime,
		Events:   d.bus,
		Native:   d.native,
		Launcher: relaunch,
	})
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}
	d.coord = coord

	d.connector = opts.Connector
	if d.connector == nil {
		d.connector = ws.NewConnector(ws.Config{
			Logger:           log.Base(),
			ListenAddr:       cfg.ListenAddr,
			NegotiateTimeout: cfg.NegotiateTimeout,
		})
	}
	loop, err := connection.NewLoop(connection.Deps{
		Logger:        log.Base(),
		Registry:      d.state.Registry,
		Liveness:      d.state.Liveness,
		Disconnect:    d.state.Disconnect,
		Restart:       d.state.Restart,
		Connector:     d.connector,
		Events:        d.bus,
		RetryInterval: cfg.RetryInterval,
	})
	if err != nil {
		return fmt.Errorf("build handshake loop: %w", err)
	}

	adapter, err := bridge.NewAdapter(bridge.Deps{
		Logger:    log.Base(),
		State:     d.state,
		Runtime:   d.runtime,
		Lifecycle: d.coord,
		Loop:      loop.Run,
		Chaperone: d.native,
		Events:    d.bus,
	})
	if err != nil {
		return fmt.Errorf("build adapter: %w", err)
	}
	d.adapter = adapter

	if cfg.DiagnosticsAddr == "" {
		return nil
	}
	srv, err := diag.New(diag.Deps{
		Logger:        log.Base(),
		Addr:          cfg.DiagnosticsAddr,
		Version:       version.Version,
		Registry:      d.state.Registry,
		Stats:         d.state.Stats,
		Liveness:      d.state.Liveness,
		Disconnect:    d.state.Disconnect,
		State:         d.coord.State,
		Driver:        d.coord,
		NativeLibrary: d.native.Path(),
		MirrorLimit:   cfg.MirrorLimit,
		MirrorBuffer:  cfg.MirrorBuffer,
	})
	if err != nil {
		return fmt.Errorf("build diagnostics server: %w", err)
	}
	d.diag = srv
	d.coord.SetWindow(srv)
	return nil
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

func (d *Driver) start() error {
	tasks := []task{
		{"config-watch", d.holder.Watch},
		{"event-log", d.logEvents(d.bus.Subscribe(eventLogBuffer))},
		{"teardown", d.teardown},
	}
	if d.diag != nil {
		tasks = append(tasks, task{"diagnostics", d.diag.Serve})
	}
	for _, t := range tasks {
		if err := d.runtime.Go(t.name, t.fn); err != nil {
			return fmt.Errorf("start %s: %w", t.name, err)
		}
	}
	return nil
}

// logEvents mirrors bus events into the log. The subscription is taken
// before the task starts so no early event is missed.
func (d *Driver) logEvents(sub *events.Subscriber) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		defer sub.Close()
		for {
			select {
			case e := <-sub.C():
				d.logger.Info().
					Str(log.FieldEvent, "driver."+string(e.Type)).
					Str(log.FieldSessionID, e.SessionID).
					Msg("driver event")
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// teardown releases process resources once the runtime is stopped.
func (d *Driver) teardown(ctx context.Context) error {
	<-ctx.Done()
	var errs []error
	if c, ok := d.connector.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()
	if err := d.tracing.Shutdown(flushCtx); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}
	return errors.Join(errs...)
}

// Factory resolves a driver interface on a dedicated native thread.
func (d *Driver) Factory(interfaceName string) (uintptr, int32) {
	return d.native.Factory(interfaceName)
}

// Adapter returns the callback table registered with the native library.
func (d *Driver) Adapter() *bridge.Adapter {
	return d.adapter
}

// Coordinator returns the lifecycle coordinator.
func (d *Driver) Coordinator() *lifecycle.Coordinator {
	return d.coord
}

// State returns the shared session state.
func (d *Driver) State() *bridge.State {
	return d.state
}

// DiagnosticsAddr returns the bound diagnostics address, or "".
func (d *Driver) DiagnosticsAddr() string {
	if d.diag == nil {
		return ""
	}
	return d.diag.Addr()
}

// Shutdown runs the immediate shutdown sequence.
func (d *Driver) Shutdown() error {
	return d.coord.Shutdown(lifecycle.TriggerShutdown)
}

func driverDir(override string) string {
	if override != "" {
		return override
	}
	if dir := os.Getenv(EnvDriverDir); dir != "" {
		return dir
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}

var (
	initOnce sync.Once
	instance *Driver
	initErr  error
)

// Init builds the process driver once. Later calls return the same result.
func Init() (*Driver, error) {
	initOnce.Do(func() {
		instance, initErr = New(context.Background(), Options{ConfigPath: os.Getenv(EnvConfigPath)})
		if initErr != nil {
			log.L().Error().
				Err(initErr).
				Str(log.FieldEvent, "driver.init_failed").
				Msg("driver initialization failed")
		}
	})
	return instance, initErr
}

// Factory is the process entry point behind HmdDriverFactory.
func Factory(interfaceName string) (uintptr, int32) {
	start := time.Now()
	d, err := Init()
	if err != nil {
		return 0, native.StatusInitFailed
	}
	ptr, status := d.Factory(interfaceName)
	d.logger.Debug().
		Str(log.FieldInterface, interfaceName).
		Int32(log.FieldStatus, status).
		Dur("duration", time.Since(start)).
		Msg("driver factory resolved")
	return ptr, status
}
