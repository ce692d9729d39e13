// Package telemetry declares the Prometheus metrics exported on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "svfemon"

// CycleRuns counts scheduler cycles by outcome: ok, error, panic, skipped.
var CycleRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "cycles_total",
		Help:      "Evaluation cycles by outcome",
	},
	[]string{"outcome"},
)

// CycleDuration observes the wall time of completed cycles.
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of evaluation cycles",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
)

// AlertsDispatched counts alerts by rule and result: persisted, suppressed,
// persist_failed.
var AlertsDispatched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "dispatched_total",
		Help:      "Alert events handled by the dispatcher",
	},
	[]string{"rule", "result"},
)

// NotificationsSent counts external notifications by channel and result.
var NotificationsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "notifications_total",
		Help:      "External notification attempts",
	},
	[]string{"channel", "result"},
)

// HubSubscribers tracks live notification subscribers.
var HubSubscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "subscribers",
		Help:      "Currently connected notification subscribers",
	},
)

// HubEvictions counts subscribers removed after a failed send.
var HubEvictions = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "evictions_total",
		Help:      "Subscribers dropped because a send failed",
	},
)

// LastSnapshot exposes the most recent global rates by name.
var LastSnapshot = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "kpi",
		Name:      "rate_percent",
		Help:      "Most recent KPI rates computed by the scheduler",
	},
	[]string{"source", "kpi"},
)

// HTTPRequests counts API requests by route template and status code.
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served",
	},
	[]string{"route", "code"},
)

// HTTPDuration observes request latency by route template.
var HTTPDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"route"},
)

// BuildInfo is set to 1 with the running binary's version labels.
var BuildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata of the running binary",
	},
	[]string{"version", "commit"},
)
