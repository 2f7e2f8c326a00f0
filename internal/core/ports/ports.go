package ports

import (
	"context"

	"meeting-copilot/internal/core/domain"
)

// Primary Port (Driving) - implemented by Service
type BotService interface {
	Join(ctx context.Context, req domain.JoinRequest) (*domain.BotSession, error)
	Leave(ctx context.Context, botID string) (*domain.BotSession, error)
	Status(ctx context.Context, botID string) (*domain.BotSession, error)
	List(ctx context.Context) []*domain.BotSession
	Snapshot(ctx context.Context, botID string) ([]byte, error)
}

// Secondary Port (Driven) - implemented by Adapters
type MeetingAutomator interface {
	// JoinMeeting blocks until the bot is admitted and the tab audio is
	// tapped, or until a setup/admission failure. On failure the automator
	// has already released the browser.
	JoinMeeting(ctx context.Context, session domain.BotSession) (AudioTap, error)
	// StopMeeting is idempotent and safe for unknown ids.
	StopMeeting(ctx context.Context, botID string) error
	GetSnapshot(ctx context.Context, botID string) ([]byte, error)
}

// AudioTap is a push stream of raw PCM chunks from the meeting tab.
type AudioTap interface {
	// Chunks is closed when the tap ends. Producers drop rather than block.
	Chunks() <-chan []byte
	// Exited is closed when the meeting ended or the bot was removed.
	Exited() <-chan struct{}
}

// Secondary Port (Driven)
type SpeechToText interface {
	Connect(ctx context.Context, botID string) (SpeechConnection, error)
}

// SpeechConnection is one duplex streaming session with the provider.
type SpeechConnection interface {
	Send(chunk []byte) error
	// Results is closed after Done.
	Results() <-chan domain.TranscriptFragment
	// Done is closed when the provider connection is gone for any reason.
	Done() <-chan struct{}
	// Err reports why Done was closed; nil after a requested Close.
	Err() error
	Close() error
}

// Secondary Port (Driven)
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// Secondary Port (Driven)
type Broadcaster interface {
	PublishTranscript(ctx context.Context, sessionID string, fragment domain.TranscriptFragment) error
	PublishSuggestions(ctx context.Context, sessionID string, batch domain.SuggestionBatch) error
}

// Secondary Port (Driven)
type RecordStore interface {
	SaveCopilotRecord(ctx context.Context, sessionID string, record domain.CopilotRecord) error
}
