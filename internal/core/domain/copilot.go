package domain

import "time"

// TranscriptFragment is one transcription result. Interim fragments may be
// revised by the provider; final ones will not.
type TranscriptFragment struct {
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

type SuggestionBatch struct {
	Suggestions []string  `json:"suggestions"`
	Timestamp   time.Time `json:"timestamp"`
}

type PostMortemReport struct {
	Pros            []string `json:"pros"`
	Cons            []string `json:"cons"`
	Verdict         string   `json:"verdict"`
	Topics          []string `json:"topics"`
	RecommendedHire bool     `json:"recommendedHire"`
}

// CopilotRecord is the payload sent to the session-record service. A
// summary record carries empty suggestion and chunk lists.
type CopilotRecord struct {
	Suggestions      []string          `json:"suggestions"`
	TranscriptChunks []string          `json:"transcriptChunks"`
	Summary          *PostMortemReport `json:"summary,omitempty"`
}

// IsSummary reports whether the record carries a post-mortem report.
func (r CopilotRecord) IsSummary() bool {
	return r.Summary != nil
}

type CompletionRequest struct {
	// Operation names the caller for tracing, e.g. "suggestions".
	Operation   string
	Prompt      string
	Temperature float64
	MaxTokens   int
}
