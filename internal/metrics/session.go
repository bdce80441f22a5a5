// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HandshakeAttemptsTotal tracks the outcome of client negotiation attempts.
	HandshakeAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrlink_handshake_attempts_total",
		Help: "Total number of client handshake attempts by result",
	}, []string{"result"})

	// SessionActive is 1 while a client session is installed.
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vrlink_session_active",
		Help: "Whether a client session is currently installed",
	})

	// SessionDuration observes how long sessions stay installed.
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vrlink_session_duration_seconds",
		Help:    "Lifetime of installed client sessions",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
	})

	// LifecycleTransitionsTotal counts coordinator state transitions.
	LifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrlink_lifecycle_transitions_total",
		Help: "Total number of lifecycle state transitions by target state and trigger",
	}, []string{"state", "trigger"})
)

// IncHandshake records a handshake attempt outcome ("success", "retry", "fatal").
func IncHandshake(result string) {
	HandshakeAttemptsTotal.WithLabelValues(result).Inc()
}

// SetSessionActive flips the active-session gauge.
func SetSessionActive(active bool) {
	if active {
		SessionActive.Set(1)
		return
	}
	SessionActive.Set(0)
}

// ObserveSessionDuration records the lifetime of one session in seconds.
func ObserveSessionDuration(seconds float64) {
	SessionDuration.Observe(seconds)
}

// IncLifecycleTransition records a coordinator state change.
func IncLifecycleTransition(state, trigger string) {
	LifecycleTransitionsTotal.WithLabelValues(state, trigger).Inc()
}
