// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux || darwin

package native

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Library is an opened driver core.
type Library struct {
	handle uintptr
	path   string

	cppEntryPoint   func(interfaceName string, returnCode *int32) uintptr
	setChaperone    func(width, height float32)
	shutdownSteamvr func()
}

// Open loads the first candidate that opens and exposes the entry points.
func Open(paths []string) (*Library, error) {
	var errs []error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		lib := &Library{handle: handle, path: path}
		if err := lib.loadSymbols(); err != nil {
			_ = purego.Dlclose(handle)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		return lib, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrLibraryNotFound, errors.Join(errs...))
}

func (l *Library) loadSymbols() error {
	for _, name := range []string{"CppEntryPoint", "SetChaperone", "ShutdownSteamvr"} {
		if _, err := purego.Dlsym(l.handle, name); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingSymbol, name)
		}
	}
	purego.RegisterLibFunc(&l.cppEntryPoint, l.handle, "CppEntryPoint")
	purego.RegisterLibFunc(&l.setChaperone, l.handle, "SetChaperone")
	purego.RegisterLibFunc(&l.shutdownSteamvr, l.handle, "ShutdownSteamvr")
	return nil
}

// Path returns the opened file.
func (l *Library) Path() string {
	return l.path
}

// Factory calls the native factory on a dedicated OS thread.
func (l *Library) Factory(interfaceName string) (uintptr, int32) {
	return Dispatch(func() (uintptr, int32) {
		var rc int32
		ptr := l.cppEntryPoint(interfaceName, &rc)
		return ptr, rc
	})
}

// SetChaperone sets the play-area bounds in meters.
func (l *Library) SetChaperone(width, height float32) {
	l.setChaperone(width, height)
}

// ShutdownSteamVR asks the native driver to quit.
func (l *Library) ShutdownSteamVR() {
	l.shutdownSteamvr()
}

var (
	registerOnce sync.Once
	// Trampolines are process-wide; purego callbacks are never freed.
	active atomic.Pointer[callbackHolder]
)

type callbackHolder struct {
	cb Callbacks
}

// RegisterCallbacks writes the callback table into the library's function
// pointer globals. It succeeds once per process.
func (l *Library) RegisterCallbacks(cb Callbacks) error {
	var err error
	first := false
	registerOnce.Do(func() {
		first = true
		active.Store(&callbackHolder{cb: cb})
		err = l.writeTable()
	})
	if !first {
		return ErrCallbacksRegistered
	}
	return err
}

func (l *Library) writeTable() error {
	table := []struct {
		symbol string
		fn     any
	}{
		{"LogError", func(msg uintptr) { current().LogError(goString(msg)) }},
		{"LogWarn", func(msg uintptr) { current().LogWarn(goString(msg)) }},
		{"LogInfo", func(msg uintptr) { current().LogInfo(goString(msg)) }},
		{"LogDebug", func(msg uintptr) { current().LogDebug(goString(msg)) }},
		{"LogPeriodically", func(tag, msg uintptr) {
			current().LogPeriodically(goString(tag), goString(msg))
		}},
		{"DriverReadyIdle", func(setDefaultChaperone uintptr) {
			// C bool: only the low byte is defined.
			current().DriverReadyIdle(setDefaultChaperone&0xff != 0)
		}},
		{"InitializeDecoder", func(buf uintptr, n int32) {
			current().InitializeDecoder(bytesView(buf, n))
		}},
		{"VideoSend", func(frame uintptr, buf uintptr, n int32) {
			var header VideoFrame
			if frame != 0 {
				header = *(*VideoFrame)(unsafe.Pointer(frame)) //nolint:govet // foreign memory
			}
			current().VideoSend(header.Header(), bytesView(buf, n))
		}},
		{"HapticsSend", func(path uint64, duration, frequency, amplitude float32) {
			current().HapticsSend(path, duration, frequency, amplitude)
		}},
		{"ShutdownRuntime", func() { current().ShutdownRuntime() }},
		{"PathStringToHash", func(path uintptr) uint64 {
			return current().PathStringToHash(goString(path))
		}},
		{"ReportPresent", func(ts uint64) { current().ReportPresent(ts) }},
		{"ReportComposed", func(ts uint64) { current().ReportComposed(ts) }},
		{"ReportEncoded", func(ts uint64) { current().ReportEncoded(ts) }},
		{"ReportFecFailure", func(pct int32) { current().ReportFECFailure(pct) }},
	}

	slots := make([]uintptr, len(table))
	for i, entry := range table {
		sym, err := purego.Dlsym(l.handle, entry.symbol)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMissingSymbol, entry.symbol)
		}
		slots[i] = sym
	}
	for i, entry := range table {
		*(*uintptr)(unsafe.Pointer(slots[i])) = purego.NewCallback(entry.fn) //nolint:govet // writes the C global
	}
	return nil
}

func current() Callbacks {
	return active.Load().cb
}
