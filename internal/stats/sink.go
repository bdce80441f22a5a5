// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stats ingests raw frame timing and size samples reported by the
// native pipeline.
package stats

import (
	"sync"
	"time"

	"github.com/ManuGH/vrlink/internal/metrics"
)

// Snapshot is a point-in-time copy of the sink counters.
type Snapshot struct {
	VideoPackets      uint64
	VideoBytes        uint64
	LastPresent       time.Duration
	LastComposed      time.Duration
	LastEncoded       time.Duration
	FECFailures       uint64
	LastFECPercentage uint32
	Since             time.Time
}

// Sink accumulates samples. It is not safe for concurrent use; callers go
// through a Slot.
type Sink struct {
	snap Snapshot
}

// NewSink creates an empty sink stamped with the current time.
func NewSink() *Sink {
	return &Sink{snap: Snapshot{Since: time.Now()}}
}

// ReportVideoPacket records one encoded packet of n bytes.
func (s *Sink) ReportVideoPacket(n int) {
	s.snap.VideoPackets++
	if n > 0 {
		s.snap.VideoBytes += uint64(n)
	}
	metrics.AddVideoPacket(n)
}

// ReportFramePresent records the time a frame was presented by the compositor.
// Timestamps are nanoseconds since an arbitrary native epoch.
func (s *Sink) ReportFramePresent(ts time.Duration) {
	s.snap.LastPresent = ts
}

// ReportFrameComposed records the time a frame finished composition.
func (s *Sink) ReportFrameComposed(ts time.Duration) {
	s.snap.LastComposed = ts
	if s.snap.LastPresent > 0 && ts >= s.snap.LastPresent {
		metrics.ObserveFrameStage(metrics.StageCompose, ts-s.snap.LastPresent)
	}
}

// ReportFrameEncoded records the time a frame finished encoding.
func (s *Sink) ReportFrameEncoded(ts time.Duration) {
	s.snap.LastEncoded = ts
	if s.snap.LastComposed > 0 && ts >= s.snap.LastComposed {
		metrics.ObserveFrameStage(metrics.StageEncode, ts-s.snap.LastComposed)
	}
}

// ReportFECFailure records an FEC failure at the given percentage (0-100).
func (s *Sink) ReportFECFailure(percentage uint32) {
	if percentage > 100 {
		percentage = 100
	}
	s.snap.FECFailures++
	s.snap.LastFECPercentage = percentage
	metrics.ObserveFECFailure(percentage)
}

// Snapshot returns a copy of the current counters.
func (s *Sink) Snapshot() Snapshot {
	return s.snap
}

// Slot holds the optional process-wide sink. A disarmed slot swallows reports.
type Slot struct {
	mu   sync.Mutex
	sink *Sink
}

// Arm installs sink, replacing any previous one.
func (sl *Slot) Arm(sink *Sink) {
	sl.mu.Lock()
	sl.sink = sink
	sl.mu.Unlock()
}

// Disarm removes and returns the current sink.
func (sl *Slot) Disarm() *Sink {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	s := sl.sink
	sl.sink = nil
	return s
}

// With runs fn against the armed sink under the slot lock. It reports
// whether a sink was armed. fn must not block.
func (sl *Slot) With(fn func(*Sink)) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.sink == nil {
		return false
	}
	fn(sl.sink)
	return true
}

// Snapshot returns the armed sink's counters.
func (sl *Slot) Snapshot() (Snapshot, bool) {
	var snap Snapshot
	ok := sl.With(func(s *Sink) { snap = s.Snapshot() })
	return snap, ok
}
