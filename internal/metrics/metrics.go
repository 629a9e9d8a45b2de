package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attendance"

var (
	// Submissions counts justification submit attempts by outcome:
	// invalid, rejected_in_flight, failed, succeeded, discarded.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "justification_submissions_total",
		Help:      "Justification submit attempts by outcome.",
	}, []string{"outcome"})

	SubmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "justification_submit_seconds",
		Help:      "Time spent in the submission collaborator.",
		Buckets:   prometheus.DefBuckets,
	})

	OpenForms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "justification_open_forms",
		Help:      "Justification forms currently held open.",
	})

	// Alerts counts dispatched alert messages by channel and outcome.
	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_total",
		Help:      "Alert messages by channel and outcome.",
	}, []string{"channel", "outcome"})

	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_classifications_total",
		Help:      "Risk lookups by resulting severity.",
	}, []string{"severity"})
)
