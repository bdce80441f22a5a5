// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !linux && !darwin

package native

// Library stub for platforms without a native binding.
type Library struct{}

// Open always fails on this platform.
func Open(_ []string) (*Library, error) {
	return nil, ErrUnsupportedPlatform
}

// Path stub.
func (l *Library) Path() string { return "" }

// Factory reports an init failure.
func (l *Library) Factory(_ string) (uintptr, int32) {
	return 0, StatusInitFailed
}

// SetChaperone stub.
func (l *Library) SetChaperone(_, _ float32) {}

// ShutdownSteamVR stub.
func (l *Library) ShutdownSteamVR() {}

// RegisterCallbacks stub.
func (l *Library) RegisterCallbacks(_ Callbacks) error {
	return ErrUnsupportedPlatform
}
