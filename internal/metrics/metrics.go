// Package metrics exposes the Prometheus collectors the reconciliation
// daemon updates during each tick.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts completed reconciliation ticks by outcome.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "technisync_ticks_total",
		Help: "Total reconciliation ticks, labeled by outcome.",
	}, []string{"outcome"})

	// TickDuration observes the wall-clock duration of a full tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "technisync_tick_duration_seconds",
		Help:    "Duration of a full ingest+propagate tick.",
		Buckets: prometheus.DefBuckets,
	})

	// ChangesTotal counts mirror/remote write operations applied during a
	// tick, labeled by server, zone and operation kind.
	ChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "technisync_changes_total",
		Help: "Record changes applied during reconciliation.",
	}, []string{"server", "zone", "operation"})

	// IngestErrorsTotal counts per-server ingest failures.
	IngestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "technisync_ingest_errors_total",
		Help: "Ingest failures, labeled by server.",
	}, []string{"server"})

	// PropagateErrorsTotal counts per-server propagation write failures.
	PropagateErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "technisync_propagate_errors_total",
		Help: "Propagation write failures, labeled by server.",
	}, []string{"server"})

	// MirrorRows reports the current row count of the mirror store.
	MirrorRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "technisync_mirror_rows",
		Help: "Current number of rows in the mirror store.",
	})

	// FleetRequestsTotal counts fleet-client HTTP calls by server, endpoint
	// and outcome.
	FleetRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "technisync_fleet_requests_total",
		Help: "Fleet client HTTP calls, labeled by server, endpoint and outcome.",
	}, []string{"server", "endpoint", "outcome"})

	// FleetRequestDuration observes fleet-client HTTP call latency.
	FleetRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "technisync_fleet_request_duration_seconds",
		Help:    "Fleet client HTTP call duration, labeled by server and endpoint.",
		Buckets: prometheus.DefBuckets,
	}, []string{"server", "endpoint"})
)
