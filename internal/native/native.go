// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package native binds the native driver core: it loads the shared library,
// installs the callback table and dispatches the driver factory.
//
// Library locations checked (in order):
//   - VRLINK_NATIVE_LIB (or the configured native.library)
//   - the directory of the running driver binary
//   - system library paths
package native

import (
	"errors"
	"path/filepath"
	"runtime"
	"unsafe"

	"github.com/ManuGH/vrlink/internal/packet"
)

var (
	// ErrLibraryNotFound is returned when no candidate path could be opened.
	ErrLibraryNotFound = errors.New("native driver library not found")

	// ErrUnsupportedPlatform is returned by builds without a native binding.
	ErrUnsupportedPlatform = errors.New("native driver not supported on this platform")

	// ErrCallbacksRegistered is returned when the table was already installed.
	ErrCallbacksRegistered = errors.New("native callbacks already registered")

	// ErrMissingSymbol wraps symbol lookup failures.
	ErrMissingSymbol = errors.New("native symbol missing")
)

// Factory status codes reported through HmdDriverFactory's return code.
const (
	StatusOK               int32 = 0
	StatusInterfaceUnknown int32 = 105 // VRInitError_Init_InterfaceNotFound
	StatusInitFailed       int32 = 108 // VRInitError_Init_Internal
)

// Callbacks is the Go side of the native callback table.
type Callbacks interface {
	LogError(msg string)
	LogWarn(msg string)
	LogInfo(msg string)
	LogDebug(msg string)
	LogPeriodically(tag, msg string)
	DriverReadyIdle(setDefaultChaperone bool)
	InitializeDecoder(config []byte)
	VideoSend(header packet.VideoFrameHeader, payload []byte)
	HapticsSend(path uint64, durationSeconds, frequency, amplitude float32)
	ShutdownRuntime()
	PathStringToHash(path string) uint64
	ReportPresent(timestampNs uint64)
	ReportComposed(timestampNs uint64)
	ReportEncoded(timestampNs uint64)
	ReportFECFailure(percentage int32)
}

// VideoFrame mirrors the native VideoFrame struct layout.
type VideoFrame struct {
	PacketCounter      uint32
	TrackingFrameIndex uint64
	VideoFrameIndex    uint64
	SentTime           uint64
	FrameByteSize      uint32
	FECIndex           uint32
	FECPercentage      uint16
}

// Header copies the frame into the packet header type.
func (f *VideoFrame) Header() packet.VideoFrameHeader {
	return packet.VideoFrameHeader{
		PacketCounter:      f.PacketCounter,
		TrackingFrameIndex: f.TrackingFrameIndex,
		VideoFrameIndex:    f.VideoFrameIndex,
		SentTime:           f.SentTime,
		FrameByteSize:      f.FrameByteSize,
		FECIndex:           f.FECIndex,
		FECPercentage:      f.FECPercentage,
	}
}

// LibraryName is the platform file name of the driver core.
func LibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libvrlink_core.dylib"
	case "windows":
		return "vrlink_core.dll"
	default:
		return "libvrlink_core.so"
	}
}

// LibraryPaths lists the candidates tried by Open. override comes first when
// set; driverDir is the directory holding the driver binary.
func LibraryPaths(override, driverDir string) []string {
	name := LibraryName()
	var paths []string
	if override != "" {
		paths = append(paths, override)
	}
	if driverDir != "" {
		paths = append(paths,
			filepath.Join(driverDir, name),
			filepath.Join(driverDir, "..", "lib", name),
		)
	}
	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, name, "/usr/local/lib/"+name, "/opt/homebrew/lib/"+name)
	case "linux":
		paths = append(paths, name, "/usr/local/lib/"+name, "/usr/lib/"+name)
	}
	return paths
}

// maxCString bounds how far a C string is scanned for its terminator.
const maxCString = 64 << 10

// goString copies a NUL-terminated C string.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr) //nolint:govet // foreign memory
	n := 0
	for n < maxCString && *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// bytesView wraps foreign memory without copying. A negative or zero length
// yields an empty view; the caller copies before the native call returns.
func bytesView(ptr uintptr, n int32) []byte {
	if ptr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(n)) //nolint:govet // foreign memory
}
