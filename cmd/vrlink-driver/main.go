// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build cgo

// Command vrlink-driver builds the driver shared object loaded by the VR
// runtime:
//
//	CGO_ENABLED=1 go build -buildmode=c-shared -o driver_vrlink.so ./cmd/vrlink-driver
//
// The runtime resolves HmdDriverFactory and calls it once per interface.
package main

// #include <stdint.h>
import "C"

import (
	"unsafe"

	"github.com/ManuGH/vrlink/internal/driver"
)

//export HmdDriverFactory
func HmdDriverFactory(interfaceName *C.char, returnCode *C.int) unsafe.Pointer {
	ptr, status := driver.Factory(C.GoString(interfaceName))
	if returnCode != nil {
		*returnCode = C.int(status)
	}
	// The pointer is owned by the native library, not the Go heap.
	return *(*unsafe.Pointer)(unsafe.Pointer(&ptr))
}

func main() {}
