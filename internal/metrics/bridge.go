// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdapterCallsTotal counts native callback invocations by adapter.
	AdapterCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrlink_adapter_calls_total",
		Help: "Total number of native callback invocations by adapter",
	}, []string{"adapter"})

	// AdapterPanicsTotal counts panics recovered at the native boundary.
	AdapterPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrlink_adapter_panics_total",
		Help: "Total number of panics recovered before crossing the native boundary",
	}, []string{"adapter"})

	// StreamDroppedTotal counts messages that never reached a session channel.
	StreamDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrlink_stream_dropped_total",
		Help: "Total number of stream messages dropped by stream and reason",
	}, []string{"stream", "reason"})

	// StreamSentTotal counts messages accepted by a session channel.
	StreamSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrlink_stream_sent_total",
		Help: "Total number of stream messages queued for the transport",
	}, []string{"stream"})

	// MirrorDroppedTotal counts mirror payloads a slow subscriber missed.
	MirrorDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrlink_mirror_dropped_total",
		Help: "Total number of mirror payloads dropped for slow subscribers",
	})

	// EventDroppedTotal counts lifecycle events a slow subscriber missed.
	EventDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrlink_event_dropped_total",
		Help: "Total number of in-process events dropped by type",
	}, []string{"type"})
)

// Drop reasons.
const (
	DropNoSession = "no_session"
	DropFull      = "full"
)

// IncAdapterCall records one native callback invocation.
func IncAdapterCall(adapter string) {
	AdapterCallsTotal.WithLabelValues(adapter).Inc()
}

// IncAdapterPanic records one recovered panic.
func IncAdapterPanic(adapter string) {
	AdapterPanicsTotal.WithLabelValues(adapter).Inc()
}

// IncStreamDrop records a dropped stream message with a concrete reason.
func IncStreamDrop(stream, reason string) {
	if stream == "" {
		stream = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	StreamDroppedTotal.WithLabelValues(stream, reason).Inc()
}

// IncStreamSent records a queued stream message.
func IncStreamSent(stream string) {
	StreamSentTotal.WithLabelValues(stream).Inc()
}

// IncMirrorDrop records a mirror payload lost to a slow subscriber.
func IncMirrorDrop() {
	MirrorDroppedTotal.Inc()
}

// IncEventDrop records an event lost to a slow subscriber.
func IncEventDrop(eventType string) {
	EventDroppedTotal.WithLabelValues(eventType).Inc()
}
