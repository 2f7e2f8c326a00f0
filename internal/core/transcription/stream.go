// Package transcription bridges a meeting audio tap to a speech-to-text
// provider connection.
package transcription

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/logging"
	"meeting-copilot/internal/observability"
)

// FragmentHandler consumes transcript fragments in arrival order.
type FragmentHandler func(ctx context.Context, f domain.TranscriptFragment)

type Config struct {
	BotID string
	// QueueSize bounds chunks waiting to be sent. A full queue drops.
	QueueSize int
	// OnEnded is called at most once, when the provider connection goes
	// away without Stop having been called. It must not call Stop.
	OnEnded func(err error)
}

// Stream forwards audio to one provider connection and hands every result
// to a single handler with a monotonically increasing Sequence.
type Stream struct {
	cfg      Config
	provider ports.SpeechToText
	handler  FragmentHandler
	logger   logging.Logger
	metrics  *observability.Metrics

	conn     ports.SpeechConnection
	queue    chan []byte
	stop     chan struct{}
	stopping atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
	seq      int64
	dropped  atomic.Int64
}

func NewStream(cfg Config, provider ports.SpeechToText, handler FragmentHandler, logger logging.Logger, metrics *observability.Metrics) *Stream {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if metrics == nil {
		metrics = observability.Discard()
	}
	return &Stream{
		cfg:      cfg,
		provider: provider,
		handler:  handler,
		metrics:  metrics,
		queue:    make(chan []byte, cfg.QueueSize),
		stop:     make(chan struct{}),
		logger:   logger.With(logging.F("component", "transcription"), logging.F("bot_id", cfg.BotID)),
	}
}

// Start opens the provider connection and begins forwarding audio. It
// returns once the connection is open.
func (s *Stream) Start(ctx context.Context, audio <-chan []byte) error {
	conn, err := s.provider.Connect(ctx, s.cfg.BotID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTranscriptionConnection, err)
	}
	s.conn = conn

	s.wg.Add(3)
	go s.pump(audio)
	go s.send()
	go s.read(ctx)

	s.logger.Info("Transcription started")
	return nil
}

func (s *Stream) pump(audio <-chan []byte) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-s.conn.Done():
			return
		case chunk, ok := <-audio:
			if !ok {
				return
			}
			select {
			case s.queue <- chunk:
			default:
				s.dropped.Add(1)
				s.metrics.AudioChunksDroppedTotal.Inc()
			}
		}
	}
}

func (s *Stream) send() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-s.conn.Done():
			return
		case chunk := <-s.queue:
			if err := s.conn.Send(chunk); err != nil {
				s.logger.Warn("Audio forwarding stopped", logging.Err(err))
				return
			}
		}
	}
}

func (s *Stream) read(ctx context.Context) {
	defer s.wg.Done()
	for f := range s.conn.Results() {
		s.seq++
		f.Sequence = s.seq
		s.handler(ctx, f)
	}

	if s.stopping.Load() {
		return
	}
	err := s.conn.Err()
	s.metrics.TranscriptionEndsTotal.Inc()
	s.logger.Warn("Transcription connection ended", logging.Err(err))
	if s.cfg.OnEnded != nil {
		s.cfg.OnEnded(fmt.Errorf("%w: %v", domain.ErrTranscriptionConnection, err))
	}
}

// Stop closes the provider connection gracefully and waits for the
// forwarding goroutines. It is idempotent and safe before Start.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		close(s.stop)
		if s.conn == nil {
			return
		}
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Closing transcription connection", logging.Err(err))
		}
		s.wg.Wait()
		s.logger.Info("Transcription stopped", logging.F("dropped_chunks", s.dropped.Load()))
	})
}

// Dropped reports how many chunks were discarded on a full queue.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}
