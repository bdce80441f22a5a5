// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VideoBytesTotal tracks encoded bytes handed to the transport.
	VideoBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrlink_video_bytes_total",
		Help: "Total number of encoded video bytes reported by the encoder",
	})

	// VideoPacketsTotal tracks encoded packets handed to the transport.
	VideoPacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrlink_video_packets_total",
		Help: "Total number of encoded video packets reported by the encoder",
	})

	// FrameStageLatency tracks the gap between consecutive pipeline stages of a frame.
	// stage=compose: present -> composed, stage=encode: composed -> encoded.
	FrameStageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vrlink_frame_stage_latency_seconds",
		Help:    "Latency between frame pipeline stages",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.011, 0.016, 0.025, 0.05, 0.1},
	}, []string{"stage"})

	// FECFailuresTotal tracks FEC failures reported by the client.
	FECFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrlink_fec_failures_total",
		Help: "Total number of FEC failures reported",
	})

	// FECPercentage is the FEC percentage in effect at the last failure.
	FECPercentage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vrlink_fec_percentage",
		Help: "FEC percentage reported with the most recent FEC failure",
	})
)

// Frame pipeline stages.
const (
	StageCompose = "compose"
	StageEncode  = "encode"
)

// AddVideoPacket records one encoded packet of n bytes.
func AddVideoPacket(n int) {
	VideoPacketsTotal.Inc()
	if n > 0 {
		VideoBytesTotal.Add(float64(n))
	}
}

// ObserveFrameStage records the latency of one pipeline stage.
func ObserveFrameStage(stage string, d time.Duration) {
	FrameStageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveFECFailure records one FEC failure at the given percentage.
func ObserveFECFailure(percentage uint32) {
	FECFailuresTotal.Inc()
	FECPercentage.Set(float64(percentage))
}
