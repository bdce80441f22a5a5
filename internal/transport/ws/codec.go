// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ws

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ManuGH/vrlink/internal/packet"
)

// VideoHeaderSize is the fixed little-endian header in front of every
// binary video message.
const VideoHeaderSize = 4 + 8 + 8 + 8 + 4 + 4 + 2

// ErrShortVideoMessage is returned for a binary message shorter than its header.
var ErrShortVideoMessage = errors.New("video message shorter than header")

// Text message types.
const (
	TypeHello   = "hello"
	TypeWelcome = "welcome"
	TypeReject  = "reject"
	TypeControl = "control"
	TypeHaptics = "haptics"
)

// Hello is the first message a client sends.
type Hello struct {
	Type     string `json:"type"`
	Version  string `json:"version"`
	Hostname string `json:"hostname"`
}

// Welcome opens a served session.
type Welcome struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Reject tells a client why negotiation failed before the socket closes.
type Reject struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ControlMessage carries a control packet. Config is base64 in JSON.
type ControlMessage struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Config []byte `json:"config,omitempty"`
}

// HapticsMessage carries one haptics pulse.
type HapticsMessage struct {
	Type       string  `json:"type"`
	Path       uint64  `json:"path"`
	DurationMs float64 `json:"durationMs"`
	Frequency  float32 `json:"frequency"`
	Amplitude  float32 `json:"amplitude"`
}

// EncodeVideo lays out header then payload.
func EncodeVideo(p packet.VideoPacket) []byte {
	buf := make([]byte, VideoHeaderSize+len(p.Payload))
	h := p.Header
	binary.LittleEndian.PutUint32(buf[0:], h.PacketCounter)
	binary.LittleEndian.PutUint64(buf[4:], h.TrackingFrameIndex)
	binary.LittleEndian.PutUint64(buf[12:], h.VideoFrameIndex)
	binary.LittleEndian.PutUint64(buf[20:], h.SentTime)
	binary.LittleEndian.PutUint32(buf[28:], h.FrameByteSize)
	binary.LittleEndian.PutUint32(buf[32:], h.FECIndex)
	binary.LittleEndian.PutUint16(buf[36:], h.FECPercentage)
	copy(buf[VideoHeaderSize:], p.Payload)
	return buf
}

// DecodeVideo parses a binary video message. The payload aliases b.
func DecodeVideo(b []byte) (packet.VideoPacket, error) {
	if len(b) < VideoHeaderSize {
		return packet.VideoPacket{}, fmt.Errorf("%w: %d bytes", ErrShortVideoMessage, len(b))
	}
	return packet.VideoPacket{
		Header: packet.VideoFrameHeader{
			PacketCounter:      binary.LittleEndian.Uint32(b[0:]),
			TrackingFrameIndex: binary.LittleEndian.Uint64(b[4:]),
			VideoFrameIndex:    binary.LittleEndian.Uint64(b[12:]),
			SentTime:           binary.LittleEndian.Uint64(b[20:]),
			FrameByteSize:      binary.LittleEndian.Uint32(b[28:]),
			FECIndex:           binary.LittleEndian.Uint32(b[32:]),
			FECPercentage:      binary.LittleEndian.Uint16(b[36:]),
		},
		Payload: b[VideoHeaderSize:],
	}, nil
}

func controlMessage(p packet.ControlPacket) ControlMessage {
	return ControlMessage{Type: TypeControl, Kind: p.Kind.String(), Config: p.Config}
}

func hapticsMessage(h packet.Haptics) HapticsMessage {
	return HapticsMessage{
		Type:       TypeHaptics,
		Path:       h.Path,
		DurationMs: float64(h.Duration) / 1e6,
		Frequency:  h.Frequency,
		Amplitude:  h.Amplitude,
	}
}
