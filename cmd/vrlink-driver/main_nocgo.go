// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !cgo

package main

import (
	"fmt"
	"os"

	"github.com/ManuGH/vrlink/internal/version"
)

func main() {
	fmt.Fprintf(os.Stderr, "vrlink-driver %s (commit: %s): build with CGO_ENABLED=1 -buildmode=c-shared\n",
		version.Version, version.Commit)
	os.Exit(1)
}
