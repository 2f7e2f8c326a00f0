package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/observability"
)

// SummarizerConfig tunes the post-mortem call.
type SummarizerConfig struct {
	// MaxChars truncates the joined transcript before prompting.
	MaxChars    int
	Temperature float64
	MaxTokens   int
}

// Summarizer produces and persists the post-mortem report of a session.
type Summarizer struct {
	cfg       SummarizerConfig
	completer ports.Completer
	store     ports.RecordStore
	metrics   *observability.Metrics
}

func NewSummarizer(cfg SummarizerConfig, completer ports.Completer, store ports.RecordStore, metrics *observability.Metrics) *Summarizer {
	if metrics == nil {
		metrics = observability.Discard()
	}
	return &Summarizer{cfg: cfg, completer: completer, store: store, metrics: metrics}
}

// Summarize assesses transcript and persists the report. An empty
// transcript yields no call, no report and no error. A report is returned
// even when persisting it fails.
func (s *Summarizer) Summarize(ctx context.Context, sessionID string, transcript []string) (*domain.PostMortemReport, error) {
	if len(transcript) == 0 {
		s.metrics.SummariesTotal.WithLabelValues(observability.OutcomeSkipped).Inc()
		return nil, nil
	}

	text := truncateRunes(strings.Join(transcript, " "), s.cfg.MaxChars)

	start := time.Now()
	raw, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Operation:   observability.OpSummary,
		Prompt:      buildSummaryPrompt(text),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	s.metrics.CompletionSeconds.WithLabelValues(observability.OpSummary).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SummariesTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		return nil, fmt.Errorf("summary completion: %w", err)
	}

	report, err := ParseReport(raw)
	if err != nil {
		s.metrics.SummariesTotal.WithLabelValues(observability.OutcomeMalformed).Inc()
		return nil, err
	}

	record := domain.CopilotRecord{
		Suggestions:      []string{},
		TranscriptChunks: []string{},
		Summary:          report,
	}
	if err := s.store.SaveCopilotRecord(ctx, sessionID, record); err != nil {
		s.metrics.PersistenceFailuresTotal.WithLabelValues(observability.OpSummary).Inc()
		return report, fmt.Errorf("saving summary: %w", err)
	}

	s.metrics.SummariesTotal.WithLabelValues(observability.OutcomePersisted).Inc()
	return report, nil
}

type reportJSON struct {
	Pros            *[]string `json:"pros"`
	Cons            *[]string `json:"cons"`
	Verdict         *string   `json:"verdict"`
	Topics          *[]string `json:"topics"`
	RecommendedHire *bool     `json:"recommendedHire"`
}

// ParseReport decodes a model answer into a report. Surrounding markdown
// fences and prose are tolerated; every key must be present with the
// right JSON type.
func ParseReport(raw string) (*domain.PostMortemReport, error) {
	body := extractObject(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in output", domain.ErrMalformedSummary)
	}

	var r reportJSON
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedSummary, err)
	}

	var missing []string
	if r.Pros == nil {
		missing = append(missing, "pros")
	}
	if r.Cons == nil {
		missing = append(missing, "cons")
	}
	if r.Verdict == nil {
		missing = append(missing, "verdict")
	}
	if r.Topics == nil {
		missing = append(missing, "topics")
	}
	if r.RecommendedHire == nil {
		missing = append(missing, "recommendedHire")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrMalformedSummary, strings.Join(missing, ", "))
	}

	return &domain.PostMortemReport{
		Pros:            *r.Pros,
		Cons:            *r.Cons,
		Verdict:         *r.Verdict,
		Topics:          *r.Topics,
		RecommendedHire: *r.RecommendedHire,
	}, nil
}

func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
