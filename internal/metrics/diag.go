// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	diagRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vrlink_diag_request_duration_seconds",
		Help:    "Diagnostics HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	diagRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vrlink_diag_requests_in_flight",
		Help: "Current number of diagnostics HTTP requests being served",
	})

	// MirrorClients tracks connected mirror websocket clients.
	MirrorClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vrlink_mirror_clients",
		Help: "Current number of connected mirror clients",
	})
)

// ObserveDiagRequest records one finished diagnostics request.
func ObserveDiagRequest(method, route string, status int, d time.Duration) {
	diagRequestDuration.WithLabelValues(method, route, statusLabel(status)).Observe(d.Seconds())
}

// DiagRequestStarted bumps the in-flight gauge; call the returned func when done.
func DiagRequestStarted() func() {
	diagRequestsInFlight.Inc()
	return diagRequestsInFlight.Dec
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
