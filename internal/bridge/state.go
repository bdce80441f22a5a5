// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bridge turns native pipeline callbacks into registry sends.
// Every entry point copies its input, never blocks, and never lets a panic
// escape to the native caller.
package bridge

import (
	"sync/atomic"

	"github.com/ManuGH/vrlink/internal/lifecycle"
	"github.com/ManuGH/vrlink/internal/registry"
	"github.com/ManuGH/vrlink/internal/stats"
)

// State is the shared handle built once per process and passed to every
// component that touches session state.
type State struct {
	Registry *registry.Registry
	Stats    *stats.Slot

	// Liveness is true between driver-ready and shutdown
	Liveness *atomic.Bool

	// Disconnect asks the handshake loop to drop the current client
	Disconnect *lifecycle.Notifier

	// Restart fires before a driver restart, while Liveness is still true
	Restart *lifecycle.Notifier
}

// NewState creates the shared state with an armed statistics sink.
func NewState(caps registry.Capacities) *State {
	s := &State{
		Registry:   registry.New(caps),
		Stats:      &stats.Slot{},
		Liveness:   &atomic.Bool{},
		Disconnect: lifecycle.NewNotifier(),
		Restart:    lifecycle.NewNotifier(),
	}
	s.Stats.Arm(stats.NewSink())
	return s
}
