package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vodforge_active_jobs",
		Help: "Number of jobs currently being processed by this worker",
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vodforge_job_duration_seconds",
		Help:    "Wall time from job pickup to its final state",
		Buckets: prometheus.LinearBuckets(30, 60, 12),
	}, []string{"status"})

	variantsEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodforge_variants_encoded_total",
		Help: "Variant encodes finished, by outcome",
	}, []string{"outcome"})

	encodeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodforge_encode_retries_total",
		Help: "Transient failures that triggered an in-job retry",
	})

	notificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodforge_notifications_total",
		Help: "Notification events handed to the notifier",
	})
)
