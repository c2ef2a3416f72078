// Package metrics exposes Prometheus instrumentation for the authority.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeltasApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "valuegraph_deltas_applied_total",
		Help: "Total number of successfully applied deltas, labelled by op.",
	}, []string{"op"})

	DeltasRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "valuegraph_deltas_rejected_total",
		Help: "Total number of rejected deltas, labelled by reason.",
	}, []string{"reason"})

	ApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "valuegraph_apply_duration_ms",
		Help:    "Authority-side delta apply latency in milliseconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 100},
	})

	ConnectedViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "valuegraph_connected_viewers",
		Help: "Number of currently connected graph viewers.",
	})

	Revision = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "valuegraph_revision",
		Help: "Current graph revision at the authority.",
	})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "valuegraph_nodes",
		Help: "Number of nodes in the canonical graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "valuegraph_edges",
		Help: "Number of edges in the canonical graph.",
	})

	SnapshotsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "valuegraph_snapshots_served_total",
		Help: "Total number of full snapshots sent to viewers.",
	})

	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "valuegraph_broadcasts_dropped_total",
		Help: "Deltas dropped because a viewer's outbound queue was full.",
	})
)
