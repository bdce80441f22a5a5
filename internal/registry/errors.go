// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import "errors"

var (
	// ErrSessionActive is returned by Install while a session is still installed.
	ErrSessionActive = errors.New("session already installed")

	// ErrNoSession is returned when a send or subscribe finds no installed session.
	ErrNoSession = errors.New("no active session")

	// ErrQueueFull is returned when a session channel has no free slot.
	ErrQueueFull = errors.New("session queue full")

	// ErrMirrorClosed is returned when subscribing to a torn-down mirror.
	ErrMirrorClosed = errors.New("mirror closed")
)
