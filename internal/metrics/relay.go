package metrics

import "github.com/prometheus/client_golang/prometheus"

// Chat relay collectors.
var (
	RelayStreamsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "streams_total",
		Help:      "Relayed upstream streams by provider and final state",
	}, []string{"provider", "state"})

	RelayEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "events_total",
		Help:      "Content events forwarded to clients",
	}, []string{"provider"})

	// RelayDroppedLinesTotal reasons: "malformed", "oversized".
	RelayDroppedLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "dropped_lines_total",
		Help:      "Upstream lines the relay could not forward",
	}, []string{"provider", "reason"})
)

// Ranked similarity collectors, labelled by the SQL or RPC function name.
var (
	MatchQueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "match",
		Name:      "queries_total",
		Help:      "Ranked similarity queries by backing function and status",
	}, []string{"function", "status"})

	MatchQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "match",
		Name:      "query_duration_seconds",
		Help:      "Ranked similarity query latency",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"function"})
)
