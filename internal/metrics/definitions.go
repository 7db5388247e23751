// Package metrics provides Prometheus self-instrumentation for the poll
// pipeline. These metrics describe the exporter itself and are served by the
// ops HTTP endpoint; decoded device values are delivered through the sinks,
// not here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CycleDuration tracks the time spent on one full poll cycle.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modmetrics_cycle_duration_seconds",
			Help:    "Time spent on one read/decode/export cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cycles counts completed poll cycles by outcome.
	Cycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmetrics_cycles_total",
			Help: "Completed poll cycles by outcome",
		},
		[]string{"status"},
	)

	// ReadErrors counts failed register range reads by register kind.
	ReadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmetrics_read_errors_total",
			Help: "Failed register range reads by kind",
		},
		[]string{"kind"},
	)

	// DecodeErrors counts registers dropped because their raw words could
	// not be decoded.
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmetrics_decode_errors_total",
			Help: "Registers dropped by decode failures",
		},
		[]string{"register"},
	)

	// SinkErrors counts failed delivery attempts by sink.
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmetrics_sink_errors_total",
			Help: "Failed sample deliveries by sink",
		},
		[]string{"sink"},
	)

	// SinkExportDuration tracks delivery latency by sink.
	SinkExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modmetrics_sink_export_duration_seconds",
			Help:    "Sample delivery latency by sink",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	// RegistersDecoded reports how many registers made it into the last
	// sample.
	RegistersDecoded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modmetrics_registers_decoded",
			Help: "Registers decoded into the last sample",
		},
	)

	// LastCycleTime is the Unix timestamp of the last completed cycle.
	LastCycleTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modmetrics_last_cycle_timestamp_seconds",
			Help: "Unix timestamp of last completed poll cycle",
		},
	)
)
