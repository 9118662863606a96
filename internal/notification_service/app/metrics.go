package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "notification"

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by provider and result.",
		},
		[]string{"provider", "result"}, // sent, invalid_recipient, invalid_body, not_configured, provider_error, timeout
	)

	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider send calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "webhook_events_total",
			Help:      "Delivery-status callbacks by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	bulkSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bulk_sends_total",
			Help:      "Completed bulk runs by status.",
		},
		[]string{"status"}, // all_succeeded, partial_failure, all_failed, aborted
	)

	bulkRecipientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bulk_recipients_total",
			Help:      "Recipients attempted by bulk runs.",
		},
		[]string{"result"},
	)

	challengesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "challenges_total",
			Help:      "Verification challenge operations.",
		},
		[]string{"action", "result"},
	)
)
