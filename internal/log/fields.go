// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldClient    = "client"
	FieldRequestID = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldAdapter   = "adapter"
	FieldStream    = "stream"
	FieldTag       = "tag"

	// Media fields
	FieldPacketCounter = "packet_counter"
	FieldFrameIndex    = "video_frame_index"
	FieldBytes         = "bytes"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Native fields
	FieldLibrary   = "library"
	FieldInterface = "interface"
	FieldStatus    = "status"

	// Network fields
	FieldAddr = "addr"
)
