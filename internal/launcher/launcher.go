// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package launcher starts the companion launcher for relaunch actions.
package launcher

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/procgroup"
	"github.com/rs/zerolog"
)

// Launcher arguments
const (
	ArgRestart = "--restart-steamvr"
	ArgUpdate  = "--update"
)

// ErrNoLauncher is returned when no launcher executable is configured.
var ErrNoLauncher = errors.New("launcher path not configured")

// Launcher starts the launcher executable detached. The child is never
// waited on: it outlives the driver, which is being torn down.
type Launcher struct {
	path   string
	logger zerolog.Logger

	// start is swapped in tests
	start func(*exec.Cmd) error
}

// New creates a launcher for the executable at path.
func New(path string) *Launcher {
	return &Launcher{
		path:   path,
		logger: log.WithComponent("launcher"),
		start:  startDetached,
	}
}

// RestartSteamVR asks the launcher to restart the VR runtime.
func (l *Launcher) RestartSteamVR() error {
	return l.run(ArgRestart)
}

// ApplicationUpdate asks the launcher to run the updater.
func (l *Launcher) ApplicationUpdate() error {
	return l.run(ArgUpdate)
}

func (l *Launcher) run(arg string) error {
	if l.path == "" {
		return ErrNoLauncher
	}
	// #nosec G204 -- launcher path comes from operator configuration
	cmd := exec.Command(l.path, arg)
	procgroup.Set(cmd)

	if err := l.start(cmd); err != nil {
		return fmt.Errorf("start launcher %s %s: %w", l.path, arg, err)
	}
	l.logger.Info().
		Str("path", l.path).
		Str("arg", arg).
		Str("event", "launcher.started").
		Msg("launcher started")
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
