// Package metrics exposes the ambient Prometheus collectors mounted at
// /metrics alongside the spec's /health endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the live depth of each named queue (audio,
	// asr_result, llm_task, llm_result) so a slow ASR worker's
	// back-pressure is observable, per §5's resource-scoping note.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livewire_queue_depth",
		Help: "Current number of items buffered in a pipeline queue.",
	}, []string{"queue"})

	// ChunkLatency observes how long one ASR chunk takes end to end,
	// from dequeue to result publish.
	ChunkLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "livewire_chunk_latency_seconds",
		Help:    "Latency of a single ASR chunk round trip.",
		Buckets: prometheus.DefBuckets,
	})

	// LLMTimeToFirstToken observes latency from completion request to the
	// first streamed token.
	LLMTimeToFirstToken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "livewire_llm_ttft_seconds",
		Help:    "Time to first streamed token from the LLM endpoint.",
		Buckets: prometheus.DefBuckets,
	})

	// Errors counts swallowed non-critical errors by subsystem, mirroring
	// the error-handling table's "logged and swallowed" policies.
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livewire_errors_total",
		Help: "Count of non-critical errors swallowed per subsystem.",
	}, []string{"subsystem"})
)
