package packer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the packer service
type Metrics struct {
	MerklizeTotal           *prometheus.CounterVec
	MerklizeDuration        prometheus.Histogram
	ChunksTotal             prometheus.Counter
	ProofValidationFailures prometheus.Counter
	ChunkVerifications      *prometheus.CounterVec
	SignaturesTotal         *prometheus.CounterVec
}

// NewMetricsWithRegistry initializes and registers the metrics with registry,
// or with the default registerer when registry is nil.
func NewMetricsWithRegistry(namespace string, registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		MerklizeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merklize_total",
				Help:      "The total number of merklize requests by result",
			},
			[]string{"result"},
		),
		MerklizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merklize_duration_seconds",
			Help:      "Time spent chunking, hashing, validating and storing a buffer",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		ChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "The total number of chunks produced by merklize",
		}),
		ProofValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_validation_failures_total",
			Help:      "The total number of chunk proofs that failed validation",
		}),
		ChunkVerifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunk_verifications_total",
				Help:      "The total number of chunk verifications by source",
			},
			[]string{"source"},
		),
		SignaturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signatures_total",
				Help:      "The total number of transaction signing attempts by result",
			},
			[]string{"result"},
		),
	}
}
