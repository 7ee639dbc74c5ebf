/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	prefix = "portal_integration_runtime"
)

// Registry holds all runtime collectors; the runtime serves it on /metrics.
var Registry = prometheus.NewRegistry()

var (
	Resyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_resync_total",
			Help: "Total number of resyncs per trigger type and outcome",
		},
		[]string{"trigger", "outcome"},
	)
	ResyncErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_resync_errors_total",
			Help: "Total number of non-fatal errors collected during resyncs, per kind and error type",
		},
		[]string{"kind", "type"},
	)
	Objects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_objects_total",
			Help: "Entities seen per kind and phase (created, updated, deleted, failed, filtered, misconfigured)",
		},
		[]string{"kind", "phase"},
	)
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_phase_duration_seconds",
			Help:    "Duration of resync phases (extract, transform, load) per kind",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		},
		[]string{"kind", "phase"},
	)
	PortalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_portal_requests_total",
			Help: "Portal API requests per method and response code",
		},
		[]string{"method", "code"},
	)
	LiveEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_live_events_total",
			Help: "Live events per path and result (processed, dropped, failed)",
		},
		[]string{"path", "result"},
	)
	ActionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_action_runs_total",
			Help: "Action runs per action and final status",
		},
		[]string{"action", "status"},
	)
	ActionQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_action_queue_depth",
			Help: "Number of action runs waiting per queue (global or partition)",
		},
		[]string{"queue"},
	)
)

const (
	PhaseExtract       = "extract"
	PhaseTransform     = "transform"
	PhaseLoad          = "load"
	PhaseCreated       = "created"
	PhaseUpdated       = "updated"
	PhaseDeleted       = "deleted"
	PhaseFailed        = "failed"
	PhaseFiltered      = "filtered"
	PhaseMisconfigured = "misconfigured"
)

func init() {
	Registry.MustRegister(
		Resyncs,
		ResyncErrors,
		Objects,
		PhaseDuration,
		PortalRequests,
		LiveEvents,
		ActionRuns,
		ActionQueueDepth,
	)
}
