// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsProcessed counts pipeline runs by terminal outcome
	// (completed, ready_for_ai, claim_miss, error).
	DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taxflow",
		Subsystem: "pipeline",
		Name:      "documents_processed_total",
		Help:      "Pipeline runs by terminal outcome.",
	}, []string{"outcome"})

	// ExtractionDuration observes wall time of extraction service calls.
	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taxflow",
		Subsystem: "pipeline",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of extraction service calls.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"document_type"})
)
