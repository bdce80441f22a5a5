// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package connection runs the client handshake loop, the only writer of the
// session registry.
package connection

import (
	"context"

	"github.com/ManuGH/vrlink/internal/events"
	"github.com/ManuGH/vrlink/internal/registry"
)

// Connector discovers and negotiates one client. Connect blocks until a
// client is negotiated or ctx is done. Errors matching ErrFatal end the
// loop; every other error is retried.
type Connector interface {
	Connect(ctx context.Context) (Link, error)
}

// Link is a negotiated client.
type Link interface {
	// Client identifies the peer for logs.
	Client() string

	// Serve forwards the session streams to the client until the client
	// disconnects, a receiver is closed, or ctx is canceled.
	Serve(ctx context.Context, rx registry.Receivers) error

	Close() error
}

// Emitter receives session lifecycle events.
type Emitter interface {
	Emit(t events.Type, sessionID string)
}
