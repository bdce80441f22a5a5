// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Defaults
const (
	DefaultLogLevel          = "info"
	DefaultVideoQueue        = 1024
	DefaultControlQueue      = 16
	DefaultHapticsQueue      = 64
	DefaultMirrorBuffer      = 64
	DefaultListenAddr        = ":9944"
	DefaultRetryInterval     = time.Second
	DefaultNegotiateTimeout  = 5 * time.Second
	DefaultMirrorLimit       = 4
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultDiagnosticsListen = "127.0.0.1:9945"
	DefaultTraceExporter     = "grpc"
	DefaultTraceEndpoint     = "localhost:4317"
	DefaultTraceSampling     = 1.0
)

// FileConfig represents the YAML configuration structure
type FileConfig struct {
	LogLevel    string            `yaml:"logLevel,omitempty"`
	Native      NativeFile        `yaml:"native,omitempty"`
	Session     SessionFile       `yaml:"session,omitempty"`
	Handshake   HandshakeFile     `yaml:"handshake,omitempty"`
	Diagnostics DiagnosticsFile   `yaml:"diagnostics,omitempty"`
	Runtime     RuntimeFileConfig `yaml:"runtime,omitempty"`
	Telemetry   TelemetryFile     `yaml:"telemetry,omitempty"`
}

// NativeFile locates the native pipeline library and launcher
type NativeFile struct {
	Library  string `yaml:"library,omitempty"`
	Launcher string `yaml:"launcher,omitempty"`
}

// SessionFile holds per-session queue capacities
type SessionFile struct {
	VideoQueue   *int `yaml:"videoQueue,omitempty"`
	ControlQueue *int `yaml:"controlQueue,omitempty"`
	HapticsQueue *int `yaml:"hapticsQueue,omitempty"`
	MirrorBuffer *int `yaml:"mirrorBuffer,omitempty"`
}

// HandshakeFile configures client discovery
type HandshakeFile struct {
	ListenAddr       string `yaml:"listenAddr,omitempty"`
	RetryInterval    string `yaml:"retryInterval,omitempty"`    // e.g. "1s"
	NegotiateTimeout string `yaml:"negotiateTimeout,omitempty"` // e.g. "5s"
}

// DiagnosticsFile configures the local diagnostics server
type DiagnosticsFile struct {
	ListenAddr  string `yaml:"listenAddr,omitempty"`
	MirrorLimit *int   `yaml:"mirrorLimit,omitempty"`
}

// RuntimeFileConfig configures task runtime shutdown
type RuntimeFileConfig struct {
	ShutdownTimeout string `yaml:"shutdownTimeout,omitempty"`
}

// TelemetryFile configures OTLP trace export
type TelemetryFile struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"` // grpc or http
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

// AppConfig is the resolved configuration.
type AppConfig struct {
	LogLevel string

	NativeLibrary string
	Launcher      string

	VideoQueue   int
	ControlQueue int
	HapticsQueue int
	MirrorBuffer int

	ListenAddr       string
	RetryInterval    time.Duration
	NegotiateTimeout time.Duration

	// DiagnosticsAddr disables the diagnostics server when empty
	DiagnosticsAddr string
	MirrorLimit     int

	ShutdownTimeout time.Duration

	TelemetryEnabled  bool
	TelemetryExporter string
	TelemetryEndpoint string
	TelemetrySampling float64

	Version string
}

// Default returns the configuration used when neither file nor env set a key.
func Default() AppConfig {
	return AppConfig{
		LogLevel:         DefaultLogLevel,
		VideoQueue:       DefaultVideoQueue,
		ControlQueue:     DefaultControlQueue,
		HapticsQueue:     DefaultHapticsQueue,
		MirrorBuffer:     DefaultMirrorBuffer,
		ListenAddr:       DefaultListenAddr,
		RetryInterval:    DefaultRetryInterval,
		NegotiateTimeout: DefaultNegotiateTimeout,
		DiagnosticsAddr:  DefaultDiagnosticsListen,
		MirrorLimit:      DefaultMirrorLimit,
		ShutdownTimeout:  DefaultShutdownTimeout,

		TelemetryExporter: DefaultTraceExporter,
		TelemetryEndpoint: DefaultTraceEndpoint,
		TelemetrySampling: DefaultTraceSampling,
	}
}

// Validate checks the resolved configuration. All problems are reported.
func Validate(cfg AppConfig) error {
	var errs []error

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("logLevel %q: %w", cfg.LogLevel, ErrInvalidLogLevel))
	}

	queues := []struct {
		name string
		v    int
	}{
		{"session.videoQueue", cfg.VideoQueue},
		{"session.controlQueue", cfg.ControlQueue},
		{"session.hapticsQueue", cfg.HapticsQueue},
		{"session.mirrorBuffer", cfg.MirrorBuffer},
		{"diagnostics.mirrorLimit", cfg.MirrorLimit},
	}
	for _, q := range queues {
		if q.v <= 0 {
			errs = append(errs, fmt.Errorf("%s=%d: %w", q.name, q.v, ErrInvalidQueueSize))
		}
	}

	intervals := []struct {
		name string
		v    time.Duration
	}{
		{"handshake.retryInterval", cfg.RetryInterval},
		{"handshake.negotiateTimeout", cfg.NegotiateTimeout},
		{"runtime.shutdownTimeout", cfg.ShutdownTimeout},
	}
	for _, d := range intervals {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s=%s: %w", d.name, d.v, ErrInvalidInterval))
		}
	}

	if cfg.ListenAddr == "" {
		errs = append(errs, errors.New("handshake.listenAddr must not be empty"))
	}

	if cfg.TelemetryEnabled {
		if cfg.TelemetryExporter != "grpc" && cfg.TelemetryExporter != "http" {
			errs = append(errs, fmt.Errorf("telemetry.exporter %q: must be grpc or http", cfg.TelemetryExporter))
		}
		if cfg.TelemetryEndpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint must not be empty"))
		}
	}
	if cfg.TelemetrySampling < 0 || cfg.TelemetrySampling > 1 {
		errs = append(errs, fmt.Errorf("telemetry.samplingRate=%v: must be within [0, 1]", cfg.TelemetrySampling))
	}

	return errors.Join(errs...)
}
