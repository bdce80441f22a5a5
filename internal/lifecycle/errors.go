// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import "errors"

var (
	// ErrMissingLogger is returned when logger is not provided
	ErrMissingLogger = errors.New("logger is required")

	// ErrMissingLiveness is returned when the liveness flag is not provided
	ErrMissingLiveness = errors.New("liveness flag is required")

	// ErrMissingNotifier is returned when the restart notifier is not provided
	ErrMissingNotifier = errors.New("restart notifier is required")

	// ErrMissingRuntime is returned when the task runtime is not provided
	ErrMissingRuntime = errors.New("task runtime is required")

	// ErrAlreadyStopped is returned when a shutdown is requested twice
	ErrAlreadyStopped = errors.New("lifecycle already shutting down or stopped")

	// ErrRuntimeStopped is returned when work is submitted to a stopped runtime
	ErrRuntimeStopped = errors.New("task runtime stopped")
)
