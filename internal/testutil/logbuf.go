// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testutil holds helpers shared by package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// LogBuffer is an io.Writer safe for concurrent loggers.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Contains reports whether any written line contains s.
func (b *LogBuffer) Contains(s string) bool {
	return strings.Contains(b.String(), s)
}

// Events decodes every JSON line and returns the "event" fields in order.
// Lines that are not JSON objects are skipped.
func (b *LogBuffer) Events() []string {
	var out []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line == "" {
			continue
		}
		var entry struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Event == "" {
			continue
		}
		out = append(out, entry.Event)
	}
	return out
}
