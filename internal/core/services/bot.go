package services

import (
	"context"
	"sync"
	"time"

	"meeting-copilot/internal/core/copilot"
	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/core/transcription"
)

// Bot owns the resources of one meeting session: its browser, its
// transcription stream and its suggestion engine.
type Bot struct {
	id        string
	sessionID string
	createdAt time.Time

	mu      sync.Mutex
	session domain.BotSession
	tap     ports.AudioTap
	stream  *transcription.Stream
	engine  *copilot.Engine

	cancelJoin context.CancelFunc
	joinDone   chan struct{}
	leaveOnce  sync.Once
	left       chan struct{}
}

func newBot(session domain.BotSession) *Bot {
	return &Bot{
		id:        session.ID,
		sessionID: session.SessionID,
		createdAt: session.CreatedAt,
		session:   session,
		joinDone:  make(chan struct{}),
		left:      make(chan struct{}),
	}
}

func (b *Bot) ID() string { return b.id }

func (b *Bot) State() domain.BotState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session.State
}

// Session returns a copy of the bot's session with its running duration.
func (b *Bot) Session() *domain.BotSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.session
	if s.State == domain.StateActive && s.JoinedAt != nil {
		s.Duration = time.Since(*s.JoinedAt).Round(time.Second).String()
	} else {
		s.CalculateDuration()
	}
	return &s
}

func (b *Bot) setState(from []domain.BotState, to domain.BotState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range from {
		if b.session.State == f {
			b.session.State = to
			return true
		}
	}
	return false
}

// activate attaches the live pipeline. It reports false when a leave
// already started, in which case the caller still hands over ownership.
func (b *Bot) activate(tap ports.AudioTap, stream *transcription.Stream, engine *copilot.Engine) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tap, b.stream, b.engine = tap, stream, engine
	if b.session.State != domain.StateJoining {
		return false
	}
	now := time.Now().UTC()
	b.session.State = domain.StateActive
	b.session.JoinedAt = &now
	return true
}

func (b *Bot) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session.State.Terminal() || b.session.State == domain.StateStopping {
		return
	}
	now := time.Now().UTC()
	b.session.State = domain.StateFailed
	b.session.Error = err.Error()
	b.session.EndedAt = &now
}

func (b *Bot) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session.EndedAt == nil {
		now := time.Now().UTC()
		b.session.EndedAt = &now
	}
	if b.session.State != domain.StateFailed {
		b.session.State = domain.StateStopped
	}
}

func (b *Bot) pipeline() (*transcription.Stream, *copilot.Engine, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stream, b.engine, b.session.JoinedAt != nil
}

// failedBefore reports whether the bot failed before t.
func (b *Bot) failedBefore(t time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session.State == domain.StateFailed && b.session.EndedAt != nil && b.session.EndedAt.Before(t)
}
