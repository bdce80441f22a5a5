// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package procgroup

import "os/exec"

func set(cmd *exec.Cmd) {
	// No-op
}

func detached(cmd *exec.Cmd) bool {
	return false
}
