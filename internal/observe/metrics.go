// Package observe provides application-wide observability primitives for
// Jarvis: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Jarvis metrics.
const meterName = "github.com/MrWong99/jarvis"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// TranscriptionDuration tracks remote transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// ConversationDuration tracks conversational backend latency (reply text
	// plus synthesized audio).
	ConversationDuration metric.Float64Histogram

	// PlaybackDuration tracks how long replies play on the output device.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Turns counts finished turns. Use with attribute:
	//   attribute.String("outcome", ...)
	Turns metric.Int64Counter

	// StateTransitions counts orchestrator state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// Utterances counts history entries. Use with attribute:
	//   attribute.String("speaker", ...)
	Utterances metric.Int64Counter

	// WakeDecisions counts wake-gate outcomes. Use with attribute:
	//   attribute.String("decision", ...)
	WakeDecisions metric.Int64Counter

	// --- Gauges ---

	// FeedSubscribers tracks connected event-feed websocket clients.
	FeedSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time, labelled by
	// method, mux route ("unmatched" when none), and status code.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// calls and reply playback, which can run for tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("jarvis.transcription.duration",
		metric.WithDescription("Latency of remote speech transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConversationDuration, err = m.Float64Histogram("jarvis.conversation.duration",
		metric.WithDescription("Latency of the conversational backend including speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("jarvis.playback.duration",
		metric.WithDescription("Wall time spent playing replies."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("jarvis.provider.requests",
		metric.WithDescription("Total provider calls by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("jarvis.provider.errors",
		metric.WithDescription("Total provider errors by provider and error kind."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("jarvis.turns",
		metric.WithDescription("Finished conversation turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("jarvis.state.transitions",
		metric.WithDescription("Orchestrator state transitions."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("jarvis.utterances",
		metric.WithDescription("History entries appended, by speaker."),
	); err != nil {
		return nil, err
	}
	if met.WakeDecisions, err = m.Int64Counter("jarvis.wake.decisions",
		metric.WithDescription("Wake-gate decisions while the gate is armed."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.FeedSubscribers, err = m.Int64UpDownCounter("jarvis.feed.subscribers",
		metric.WithDescription("Number of connected event-feed clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("jarvis.http.request.duration",
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

// RecordProviderRequest records a provider call with the standard attribute
// set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error. kind is the error kind
// (network, service, ...), not the provider kind.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn records a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTransition records an orchestrator state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordUtterance records one appended history entry.
func (m *Metrics) RecordUtterance(ctx context.Context, speaker string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
}

// RecordWakeDecision records a wake-gate decision ("opened" or "reminded").
func (m *Metrics) RecordWakeDecision(ctx context.Context, decision string) {
	m.WakeDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}
