// Package redis publishes live copilot events to per-session Redis channels.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/logging"
)

// Event names seen by subscribers.
const (
	EventTranscript  = "copilot:transcript"
	EventSuggestions = "copilot:suggestions"
)

// Envelope wraps every published payload.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type TranscriptEvent struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
}

type SuggestionsEvent struct {
	SessionID   string    `json:"sessionId"`
	Suggestions []string  `json:"suggestions"`
	Timestamp   time.Time `json:"timestamp"`
}

// publisher is the slice of the redis client the broadcaster needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

type Config struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

type Broadcaster struct {
	client publisher
	prefix string
	logger logging.Logger
}

var _ ports.Broadcaster = (*Broadcaster)(nil)

func NewBroadcaster(client publisher, prefix string, logger logging.Logger) *Broadcaster {
	return &Broadcaster{
		client: client,
		prefix: prefix,
		logger: logger.With(logging.F("component", "broadcaster")),
	}
}

// NewBroadcasterFromConfig dials Redis and checks the connection.
func NewBroadcasterFromConfig(ctx context.Context, cfg Config, logger logging.Logger) (*Broadcaster, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return NewBroadcaster(client, cfg.ChannelPrefix, logger), nil
}

// Channel returns the channel a session's events are published on.
func (b *Broadcaster) Channel(sessionID string) string {
	return b.prefix + sessionID
}

func (b *Broadcaster) PublishTranscript(ctx context.Context, sessionID string, f domain.TranscriptFragment) error {
	return b.publish(ctx, sessionID, EventTranscript, TranscriptEvent{
		SessionID: sessionID,
		Text:      f.Text,
		IsFinal:   f.IsFinal,
		Timestamp: f.Timestamp,
	})
}

func (b *Broadcaster) PublishSuggestions(ctx context.Context, sessionID string, batch domain.SuggestionBatch) error {
	return b.publish(ctx, sessionID, EventSuggestions, SuggestionsEvent{
		SessionID:   sessionID,
		Suggestions: batch.Suggestions,
		Timestamp:   batch.Timestamp,
	})
}

func (b *Broadcaster) publish(ctx context.Context, sessionID, event string, data any) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event, err)
	}

	channel := b.Channel(sessionID)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	b.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("event", event),
		logging.F("payload_size", len(payload)))
	return nil
}

func (b *Broadcaster) Close() error {
	return b.client.Close()
}
