// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts child processes outside the driver's process group.
package procgroup

import "os/exec"

// Set configures the command to start in a new process group, so signals
// aimed at the host process group do not reach it.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Detached reports whether Set placed cmd in its own group on this platform.
func Detached(cmd *exec.Cmd) bool {
	return detached(cmd)
}
