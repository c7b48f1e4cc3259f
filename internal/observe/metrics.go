// Package observe provides application-wide observability primitives for
// Grenouille: OpenTelemetry metrics, tracing, trace-aware logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/grenouille"

// Utterance outcomes recorded on [Metrics.Utterances].
const (
	StatusAnswered   = "answered"
	StatusUnclear    = "unclear"
	StatusIgnored    = "ignored"
	StatusFailed     = "failed"
	StatusNoSpeech   = "no_speech"
	StatusCodeAction = "python"
)

// Metrics holds all OpenTelemetry instruments for the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// --- Segmentation ---

	// PollTickDuration tracks the time spent in one poll tick, excluding the
	// utterance handoff.
	PollTickDuration metric.Float64Histogram

	// VADDuration tracks one voice-activity classification.
	VADDuration metric.Float64Histogram

	// WakewordDetections counts wake-word detections. Attribute: "wakeword".
	WakewordDetections metric.Int64Counter

	// ClassifierErrors counts classifier failures. Attribute: "gate".
	ClassifierErrors metric.Int64Counter

	// BufferEvicted counts samples dropped from the ring buffer because it was
	// full.
	BufferEvicted metric.Int64Counter

	// --- Utterances ---

	// Utterances counts finalized utterances. Attribute: "status".
	Utterances metric.Int64Counter

	// UtteranceDuration tracks the duration of the audio handed off.
	UtteranceDuration metric.Float64Histogram

	// UtteranceTruncated counts utterances longer than the buffer window.
	UtteranceTruncated metric.Int64Counter

	// --- Collaborators ---

	// STTDuration tracks speech-to-text latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech latency including playback.
	TTSDuration metric.Float64Histogram

	// LLMTokens counts tokens. Attribute: "kind" (prompt, completion).
	LLMTokens metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes: "provider", "kind",
	// "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: "provider", "kind".
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// "method", "route" (the matched mux pattern).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries (seconds) for collaborator calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// tickBuckets are histogram boundaries (seconds) for the 10 ms poll loop.
var tickBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

// utteranceBuckets are histogram boundaries (seconds) for utterance lengths.
var utteranceBuckets = []float64{
	1, 2, 3, 5, 8, 10, 15, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string, buckets []float64) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(buckets...),
		)
	}

	if met.PollTickDuration, err = histogram("grenouille.poll.tick.duration",
		"Time spent in one poll tick.", tickBuckets); err != nil {
		return nil, err
	}
	if met.VADDuration, err = histogram("grenouille.vad.duration",
		"Latency of one voice-activity classification.", tickBuckets); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = histogram("grenouille.utterance.duration",
		"Duration of the audio handed off per utterance.", utteranceBuckets); err != nil {
		return nil, err
	}
	if met.STTDuration, err = histogram("grenouille.stt.duration",
		"Latency of speech-to-text transcription.", latencyBuckets); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("grenouille.llm.duration",
		"Latency of LLM completion.", latencyBuckets); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = histogram("grenouille.tts.duration",
		"Latency of text-to-speech including playback.", latencyBuckets); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.WakewordDetections, "grenouille.wakeword.detections", "Total wake-word detections."},
		{&met.ClassifierErrors, "grenouille.classifier.errors", "Total classifier failures by gate."},
		{&met.BufferEvicted, "grenouille.buffer.evicted", "Total samples evicted from the ring buffer."},
		{&met.Utterances, "grenouille.utterances", "Total finalized utterances by outcome."},
		{&met.UtteranceTruncated, "grenouille.utterance.truncated", "Total utterances longer than the buffer window."},
		{&met.LLMTokens, "grenouille.llm.tokens", "Total LLM tokens by kind."},
		{&met.ProviderRequests, "grenouille.provider.requests", "Total provider requests by provider, kind, and status."},
		{&met.ProviderErrors, "grenouille.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("grenouille.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordUtterance records a finalized utterance outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, status string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordTokens records the prompt and completion token counts of one LLM call.
func (m *Metrics) RecordTokens(ctx context.Context, prompt, completion int) {
	if prompt > 0 {
		m.LLMTokens.Add(ctx, int64(prompt), metric.WithAttributes(attribute.String("kind", "prompt")))
	}
	if completion > 0 {
		m.LLMTokens.Add(ctx, int64(completion), metric.WithAttributes(attribute.String("kind", "completion")))
	}
}
