// Package metrics – Prometheus metrics for the reconciliation engine.
//
// Registered in init() and served at /metrics by cmd/engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_stream_events_total",
			Help: "Normalized push events dispatched, by kind",
		},
		[]string{"kind"},
	)

	StreamReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_stream_reconnects_total",
			Help: "WebSocket reconnect attempts, by feed",
		},
		[]string{"feed"},
	)

	PositionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_positions_opened_total",
			Help: "Positions promoted entry_pending -> open",
		},
	)

	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_positions_closed_total",
			Help: "Positions closed, by close reason",
		},
		[]string{"reason"},
	)

	ReconcileOrphans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_reconcile_orphans_total",
			Help: "Exit fills with no matching position",
		},
	)

	TrailSteps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_trail_steps_total",
			Help: "Trailing exit price steps applied",
		},
	)

	AdmissionRefused = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_admission_refused_total",
			Help: "Slot reservations refused, by cause (limit|contention)",
		},
		[]string{"cause"},
	)

	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Open positions per account",
		},
		[]string{"account"},
	)
)

func init() {
	prometheus.MustRegister(
		StreamEvents,
		StreamReconnects,
		PositionsOpened,
		PositionsClosed,
		ReconcileOrphans,
		TrailSteps,
		AdmissionRefused,
		OpenPositions,
	)
}
