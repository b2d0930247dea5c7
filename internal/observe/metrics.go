// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/gyojeong/bff"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// LLMDuration tracks chat-completion call latency. Use with attribute:
	//   attribute.String("kind", "chat"|"chat_structured")
	LLMDuration metric.Float64Histogram

	// RetrievalDuration tracks example-retrieval latency. Use with attribute:
	//   attribute.String("backend", "vector"|"lexical")
	RetrievalDuration metric.Float64Histogram

	// AnalysisDuration tracks morphological analysis latency.
	AnalysisDuration metric.Float64Histogram

	// SentencePipelineDuration tracks the full per-sentence grammar protocol.
	SentencePipelineDuration metric.Float64Histogram

	// --- Counters ---

	// LLMRequests counts chat-completion calls. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	LLMRequests metric.Int64Counter

	// CandidateSentences counts tagged sentences. Use with attribute:
	//   attribute.String("candidate", "true"|"false")
	CandidateSentences metric.Int64Counter

	// EventsPublished counts feedback events by outcome. Use with attribute:
	//   attribute.String("status", "published"|"fallback"|"dropped")
	EventsPublished metric.Int64Counter

	// --- Gauges ---

	// ActiveRequests tracks feedback requests currently in flight.
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for a
// pipeline whose slowest legs are LLM calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("gyojeong.llm.duration",
		metric.WithDescription("Latency of chat-completion calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("gyojeong.retrieval.duration",
		metric.WithDescription("Latency of error-example retrieval by backend."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("gyojeong.analysis.duration",
		metric.WithDescription("Latency of morphological analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SentencePipelineDuration, err = m.Float64Histogram("gyojeong.sentence_pipeline.duration",
		metric.WithDescription("End-to-end latency of one sentence's grammar protocol."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.LLMRequests, err = m.Int64Counter("gyojeong.llm.requests",
		metric.WithDescription("Total chat-completion calls by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.CandidateSentences, err = m.Int64Counter("gyojeong.sentences.tagged",
		metric.WithDescription("Total tagged sentences by candidacy."),
	); err != nil {
		return nil, err
	}
	if met.EventsPublished, err = m.Int64Counter("gyojeong.events.published",
		metric.WithDescription("Total feedback events by publication outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("gyojeong.active_requests",
		metric.WithDescription("Number of feedback requests currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("gyojeong.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordLLMRequest records one chat-completion call with the standard
// attribute set.
func (m *Metrics) RecordLLMRequest(ctx context.Context, kind, status string) {
	m.LLMRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordTaggedSentence records one tagged sentence.
func (m *Metrics) RecordTaggedSentence(ctx context.Context, candidate bool) {
	v := "false"
	if candidate {
		v = "true"
	}
	m.CandidateSentences.Add(ctx, 1,
		metric.WithAttributes(attribute.String("candidate", v)),
	)
}

// RecordEventsPublished records the outcome of n feedback events.
func (m *Metrics) RecordEventsPublished(ctx context.Context, status string, n int) {
	m.EventsPublished.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("status", status)),
	)
}
