package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK     = "ok"
	OutcomeNoop   = "noop"
	OutcomeFailed = "failed"

	NotificationReview      = "review"
	NotificationTourCreated = "tour_created"
	NotificationCompletion  = "completion"
)

var (
	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewcenter_reconciliations_total",
			Help: "Flight approval reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	ReconciliationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crewcenter_reconciliation_duration_seconds",
			Help:    "Time spent reconciling one approved flight",
			Buckets: prometheus.DefBuckets,
		},
	)

	AwardsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewcenter_awards_completed_total",
			Help: "Tours completed by pilots",
		},
	)

	NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crewcenter_notifications_created_total",
			Help: "Notifications inserted, excluding deduplicated requests",
		},
		[]string{"kind"},
	)

	ReplaysEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crewcenter_replays_enqueued_total",
			Help: "Failed reconciliations handed to the replay queue",
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crewcenter_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
