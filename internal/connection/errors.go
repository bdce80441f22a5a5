// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package connection

import "errors"

var (
	// ErrInterrupted is returned when the loop was canceled on purpose.
	// Callers treat it as a clean exit.
	ErrInterrupted = errors.New("handshake loop interrupted")

	// ErrFatal classifies negotiation failures that end the loop.
	ErrFatal = errors.New("unrecoverable negotiation failure")

	// ErrMissingConnector is returned when no transport connector is provided
	ErrMissingConnector = errors.New("connector is required")

	// ErrMissingRegistry is returned when the session registry is not provided
	ErrMissingRegistry = errors.New("registry is required")

	// ErrMissingLiveness is returned when the liveness flag is not provided
	ErrMissingLiveness = errors.New("liveness flag is required")

	// ErrMissingNotifier is returned when a lifecycle notifier is not provided
	ErrMissingNotifier = errors.New("disconnect and restart notifiers are required")
)

// FatalError wraps a transport error that must not be retried.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

// Unwrap matches both ErrFatal and the cause.
func (e *FatalError) Unwrap() []error {
	return []error{ErrFatal, e.Err}
}

// Fatal marks err as unrecoverable. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}
