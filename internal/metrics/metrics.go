// Package metrics defines the prometheus collectors for the variant
// pipeline. Collectors register on the default registry; the worker binary
// exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VariantsGenerated counts successful variant generations.
	VariantsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variant_generated_total",
		Help: "Number of image variants generated successfully.",
	}, []string{"suffix", "format"})

	// VariantFailures counts failed generations by failure kind.
	VariantFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variant_failures_total",
		Help: "Number of failed variant generations by failure kind.",
	}, []string{"kind"})

	// GenerationDuration observes end-to-end generation time, upload included.
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "variant_generation_duration_seconds",
		Help:    "Time to fetch, transform and upload one variant.",
		Buckets: prometheus.DefBuckets,
	})

	// EnrichedObjects counts media objects decorated on the read path.
	EnrichedObjects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "variant_enriched_objects_total",
		Help: "Number of media objects decorated with variant overlays.",
	})

	// RegenerationRuns counts regeneration workflow completions by outcome.
	RegenerationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variant_regeneration_runs_total",
		Help: "Number of regeneration workflow runs by outcome.",
	}, []string{"outcome"})
)
