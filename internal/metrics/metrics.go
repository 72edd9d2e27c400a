package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationsTotal counts license validation results by outcome.
	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commenta",
		Subsystem: "license",
		Name:      "validations_total",
		Help:      "License validation results by outcome.",
	}, []string{"outcome"})

	// SiteUpsertFailures counts site registrations that failed after a successful validation.
	SiteUpsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "commenta",
		Subsystem: "license",
		Name:      "site_upsert_failures_total",
		Help:      "Site registrations that failed to persist.",
	})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commenta",
		Subsystem: "stripe",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "commenta",
		Subsystem: "stripe",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})
)

// Validation outcomes.
const (
	OutcomeValid        = "valid"
	OutcomeMissingToken = "missing_token"
	OutcomeUnknownKey   = "unknown_key"
	OutcomeRevoked      = "revoked"
	OutcomeNoAccount    = "no_account"
	OutcomeNotPro       = "not_pro"
	OutcomeError        = "error"
	OutcomeRateLimited  = "rate_limited"
)
