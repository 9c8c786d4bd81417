package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicenote"

var (
	// UploadsTotal counts transcription uploads by outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Total transcription uploads by result.",
	}, []string{"result"})

	// TranscriptionDuration tracks transcriber latency per provider.
	TranscriptionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transcription_duration_seconds",
		Help:      "Transcription duration in seconds by provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	// WebhookRequestsTotal counts payment webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_requests_total",
		Help:      "Total payment webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// CheckoutSessionsTotal counts checkout session creation attempts.
	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_sessions_total",
		Help:      "Total checkout session creation attempts by result.",
	}, []string{"result"})

	// StagedFilesSwept counts orphaned staged files removed by the sweeper.
	StagedFilesSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "staged_files_swept_total",
		Help:      "Orphaned staged upload files removed by the cleanup sweeper.",
	})
)
