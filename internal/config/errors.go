// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "errors"

var (
	// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
	// Use errors.Is(err, ErrUnknownConfigField) instead of string matching.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrInvalidQueueSize is returned for non-positive session queue capacities
	ErrInvalidQueueSize = errors.New("queue size must be positive")

	// ErrInvalidInterval is returned for non-positive durations
	ErrInvalidInterval = errors.New("interval must be positive")

	// ErrInvalidLogLevel is returned for log levels zerolog cannot parse
	ErrInvalidLogLevel = errors.New("invalid log level")
)
