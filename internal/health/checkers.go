// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os"
	"sync/atomic"
)

// LivenessChecker reports the driver liveness flag.
type LivenessChecker struct {
	alive *atomic.Bool
}

// NewLivenessChecker creates a checker over the shared liveness flag.
func NewLivenessChecker(alive *atomic.Bool) *LivenessChecker {
	return &LivenessChecker{alive: alive}
}

func (c *LivenessChecker) Name() string {
	return "driver"
}

func (c *LivenessChecker) Check(_ context.Context) CheckResult {
	if c.alive.Load() {
		return CheckResult{Status: StatusHealthy, Message: "driver ready"}
	}
	return CheckResult{Status: StatusUnhealthy, Message: "driver not ready or shutting down"}
}

// SessionChecker reports whether a client is connected. No client is
// degraded, not unhealthy: the driver is waiting for one.
type SessionChecker struct {
	active func() (string, bool)
}

// NewSessionChecker creates a checker over a session lookup.
func NewSessionChecker(active func() (string, bool)) *SessionChecker {
	return &SessionChecker{active: active}
}

func (c *SessionChecker) Name() string {
	return "session"
}

func (c *SessionChecker) Check(_ context.Context) CheckResult {
	if id, ok := c.active(); ok {
		return CheckResult{Status: StatusHealthy, Message: id}
	}
	return CheckResult{Status: StatusDegraded, Message: "no client connected"}
}

// FileChecker checks that a configured file exists.
type FileChecker struct {
	name string
	path string
}

// NewFileChecker creates a checker for file existence
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string {
	return c.name
}

func (c *FileChecker) Check(_ context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	info, err := os.Stat(c.path)
	switch {
	case os.IsNotExist(err):
		return CheckResult{Status: StatusUnhealthy, Error: "file not found", Message: c.path}
	case err != nil:
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	case info.IsDir():
		return CheckResult{Status: StatusUnhealthy, Error: "expected file, got directory"}
	}
	return CheckResult{Status: StatusHealthy, Message: c.path}
}
