// Package observability holds the Prometheus metrics and OpenTelemetry
// spans of the copilot pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeAdmitted        = "admitted"
	OutcomeSetupFailed     = "setup_failed"
	OutcomeAdmissionFailed = "admission_failed"

	OutcomeEmitted = "emitted"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"

	OutcomePersisted = "persisted"
	OutcomeSkipped   = "skipped"
	OutcomeMalformed = "malformed"
)

// Operation label values.
const (
	OpSuggestions = "suggestions"
	OpSummary     = "summary"
)

// Metrics holds all Prometheus metrics for the copilot service.
type Metrics struct {
	// Bot lifecycle
	BotJoinsTotal *prometheus.CounterVec
	ActiveBots    prometheus.Gauge

	// Transcription
	TranscriptFragmentsTotal *prometheus.CounterVec
	AudioChunksDroppedTotal  prometheus.Counter
	TranscriptionEndsTotal   prometheus.Counter

	// Suggestions and summaries
	SuggestionCyclesTotal *prometheus.CounterVec
	SummariesTotal        *prometheus.CounterVec
	CompletionSeconds     *prometheus.HistogramVec

	// Downstream delivery
	BroadcastFailuresTotal   *prometheus.CounterVec
	PersistenceFailuresTotal *prometheus.CounterVec
}

// DefaultMetrics registers the metrics with the global registry.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BotJoinsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_bot_joins_total",
				Help: "Join attempts by outcome",
			},
			[]string{"outcome"},
		),
		ActiveBots: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "copilot_active_bots",
				Help: "Bots currently admitted to a meeting",
			},
		),

		TranscriptFragmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_transcript_fragments_total",
				Help: "Transcript fragments received from the provider",
			},
			[]string{"kind"},
		),
		AudioChunksDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "copilot_audio_chunks_dropped_total",
				Help: "Audio chunks dropped because the send queue was full",
			},
		),
		TranscriptionEndsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "copilot_transcription_unexpected_ends_total",
				Help: "Provider connections that closed while the bot was live",
			},
		),

		SuggestionCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_suggestion_cycles_total",
				Help: "Completed suggestion cycles by outcome",
			},
			[]string{"outcome"},
		),
		SummariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_summaries_total",
				Help: "Post-mortem summaries by outcome",
			},
			[]string{"outcome"},
		),
		CompletionSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copilot_completion_seconds",
				Help:    "Language model completion latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),

		BroadcastFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_broadcast_failures_total",
				Help: "Events that could not be published",
			},
			[]string{"event"},
		),
		PersistenceFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copilot_persistence_failures_total",
				Help: "Records the session-record service did not accept",
			},
			[]string{"kind"},
		),
	}
}

// FragmentKind returns the label value for a transcript fragment.
func FragmentKind(isFinal bool) string {
	if isFinal {
		return "final"
	}
	return "interim"
}

// Discard returns metrics bound to a private registry that nothing scrapes.
func Discard() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
