// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader. An empty path means
// defaults plus environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Path returns the watched file path.
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	// 1. Defaults
	cfg := Default()

	// 2. File
	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFile(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	// 3. Environment (highest priority)
	mergeEnv(&cfg)

	cfg.Version = l.version

	// 4. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseFile(data)
}

func parseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFile(dst *AppConfig, src *FileConfig) error {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Native.Library != "" {
		dst.NativeLibrary = src.Native.Library
	}
	if src.Native.Launcher != "" {
		dst.Launcher = src.Native.Launcher
	}

	setInt(&dst.VideoQueue, src.Session.VideoQueue)
	setInt(&dst.ControlQueue, src.Session.ControlQueue)
	setInt(&dst.HapticsQueue, src.Session.HapticsQueue)
	setInt(&dst.MirrorBuffer, src.Session.MirrorBuffer)

	if src.Handshake.ListenAddr != "" {
		dst.ListenAddr = src.Handshake.ListenAddr
	}
	if err := setDuration(&dst.RetryInterval, "handshake.retryInterval", src.Handshake.RetryInterval); err != nil {
		return err
	}
	if err := setDuration(&dst.NegotiateTimeout, "handshake.negotiateTimeout", src.Handshake.NegotiateTimeout); err != nil {
		return err
	}

	if src.Diagnostics.ListenAddr != "" {
		dst.DiagnosticsAddr = src.Diagnostics.ListenAddr
	}
	setInt(&dst.MirrorLimit, src.Diagnostics.MirrorLimit)

	if src.Telemetry.Enabled != nil {
		dst.TelemetryEnabled = *src.Telemetry.Enabled
	}
	if src.Telemetry.Exporter != "" {
		dst.TelemetryExporter = src.Telemetry.Exporter
	}
	if src.Telemetry.Endpoint != "" {
		dst.TelemetryEndpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.SamplingRate != nil {
		dst.TelemetrySampling = *src.Telemetry.SamplingRate
	}

	return setDuration(&dst.ShutdownTimeout, "runtime.shutdownTimeout", src.Runtime.ShutdownTimeout)
}

func mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
	cfg.NativeLibrary = ParseString(EnvNativeLibrary, cfg.NativeLibrary)
	cfg.Launcher = ParseString(EnvLauncher, cfg.Launcher)
	cfg.ListenAddr = ParseString(EnvListenAddr, cfg.ListenAddr)
	cfg.VideoQueue = ParseInt(EnvVideoQueue, cfg.VideoQueue)
	cfg.RetryInterval = ParseDuration(EnvRetryInterval, cfg.RetryInterval)
	cfg.NegotiateTimeout = ParseDuration(EnvNegotiateTimeout, cfg.NegotiateTimeout)
	cfg.ShutdownTimeout = ParseDuration(EnvShutdownTimeout, cfg.ShutdownTimeout)
	cfg.TelemetryEnabled = ParseBool(EnvTelemetryEnabled, cfg.TelemetryEnabled)
	cfg.TelemetryEndpoint = ParseString(EnvTelemetryEndpoint, cfg.TelemetryEndpoint)

	// An explicitly empty value turns the diagnostics server off.
	if v, ok := os.LookupEnv(EnvDiagnosticsAddr); ok {
		cfg.DiagnosticsAddr = strings.TrimSpace(v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, key, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
