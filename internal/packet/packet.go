// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package packet defines the owned message values that flow from the native
// callback adapter to the network transport.
package packet

import "time"

// VideoFrameHeader describes one encoded video packet as reported by the encoder.
type VideoFrameHeader struct {
	PacketCounter      uint32
	TrackingFrameIndex uint64
	VideoFrameIndex    uint64
	SentTime           uint64
	FrameByteSize      uint32
	FECIndex           uint32
	FECPercentage      uint16
}

// VideoPacket is an encoded video fragment. Payload is owned by the packet;
// it never aliases native memory.
type VideoPacket struct {
	Header  VideoFrameHeader
	Payload []byte
}

// Haptics is a single vibration command for a tracked device.
type Haptics struct {
	Path      uint64
	Duration  time.Duration
	Frequency float32
	Amplitude float32
}

// ControlKind enumerates session-control messages.
type ControlKind uint8

const (
	// ControlInitializeDecoder carries the codec configuration blob (SPS/PPS, VPS).
	ControlInitializeDecoder ControlKind = iota + 1
	// ControlRestart tells the client the server is restarting.
	ControlRestart
	// ControlKeepAlive is sent periodically by the transport.
	ControlKeepAlive
)

// String returns the wire name of the kind.
func (k ControlKind) String() string {
	switch k {
	case ControlInitializeDecoder:
		return "initialize_decoder"
	case ControlRestart:
		return "restart"
	case ControlKeepAlive:
		return "keep_alive"
	default:
		return "unknown"
	}
}

// ControlPacket is a session-control message. Config is only set for
// ControlInitializeDecoder.
type ControlPacket struct {
	Kind   ControlKind
	Config []byte
}

// InitializeDecoder builds a decoder-ready control packet owning config.
func InitializeDecoder(config []byte) ControlPacket {
	return ControlPacket{Kind: ControlInitializeDecoder, Config: config}
}

// Restart builds a restart control packet.
func Restart() ControlPacket {
	return ControlPacket{Kind: ControlRestart}
}

// DurationFromSeconds converts a native float-seconds value. Negative and NaN
// inputs yield zero.
func DurationFromSeconds(seconds float32) time.Duration {
	if !(seconds > 0) {
		return 0
	}
	return time.Duration(float64(seconds) * float64(time.Second))
}
