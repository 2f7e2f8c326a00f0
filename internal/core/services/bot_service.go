package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"meeting-copilot/internal/core/copilot"
	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/core/transcription"
	"meeting-copilot/internal/logging"
	"meeting-copilot/internal/observability"
)

// Dependencies are the driven ports a BotService orchestrates.
type Dependencies struct {
	Automator   ports.MeetingAutomator
	Speech      ports.SpeechToText
	Completer   ports.Completer
	Broadcaster ports.Broadcaster
	Records     ports.RecordStore
	Registry    Registry
	Logger      logging.Logger
	Metrics     *observability.Metrics
}

// Settings tune every bot the service starts.
type Settings struct {
	DefaultDisplayName string
	AudioQueueSize     int
	// Engine is a template; bot and session ids are filled per bot.
	Engine  copilot.EngineConfig
	Summary copilot.SummarizerConfig
}

// BotService implements ports.BotService.
type BotService struct {
	deps       Dependencies
	settings   Settings
	summarizer *copilot.Summarizer
	logger     logging.Logger
}

var _ ports.BotService = (*BotService)(nil)

func NewBotService(deps Dependencies, settings Settings) *BotService {
	if deps.Registry == nil {
		deps.Registry = NewMemoryRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.Discard()
	}
	return &BotService{
		deps:       deps,
		settings:   settings,
		summarizer: copilot.NewSummarizer(settings.Summary, deps.Completer, deps.Records, deps.Metrics),
		logger:     deps.Logger.With(logging.F("component", "bot_service")),
	}
}

// Join registers a bot for the session and starts joining in the
// background. It never waits for the browser.
func (s *BotService) Join(ctx context.Context, req domain.JoinRequest) (*domain.BotSession, error) {
	req, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	session := domain.BotSession{
		ID:          uuid.New().String(),
		MeetingURL:  req.MeetingURL,
		SessionID:   req.SessionID,
		DisplayName: req.DisplayName,
		State:       domain.StateInitializing,
		CreatedAt:   time.Now().UTC(),
	}
	bot := newBot(session)

	joinCtx, cancel := context.WithCancel(context.Background())
	bot.cancelJoin = cancel

	if err := s.deps.Registry.Claim(bot); err != nil {
		cancel()
		return nil, err
	}

	s.logger.Info("Bot registered",
		logging.F("bot_id", bot.id),
		logging.F("session_id", bot.sessionID),
		logging.F("meeting_url", req.MeetingURL))

	go s.run(joinCtx, bot)

	return bot.Session(), nil
}

func (s *BotService) validate(req domain.JoinRequest) (domain.JoinRequest, error) {
	req.MeetingURL = strings.TrimSpace(req.MeetingURL)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if req.MeetingURL == "" {
		return req, fmt.Errorf("meetingUrl is required: %w", domain.ErrValidation)
	}
	u, err := url.Parse(req.MeetingURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return req, fmt.Errorf("meetingUrl must be an http(s) URL: %w", domain.ErrValidation)
	}
	if req.SessionID == "" {
		return req, fmt.Errorf("sessionId is required: %w", domain.ErrValidation)
	}
	if req.DisplayName == "" {
		req.DisplayName = s.settings.DefaultDisplayName
	}
	return req, nil
}

// run drives one bot from joining to active. It returns once the pipeline
// is running or the join failed; the exit watcher outlives it.
func (s *BotService) run(ctx context.Context, bot *Bot) {
	defer close(bot.joinDone)
	log := s.logger.With(logging.F("bot_id", bot.id), logging.F("session_id", bot.sessionID))

	if !bot.setState([]domain.BotState{domain.StateInitializing}, domain.StateJoining) {
		return
	}

	tap, err := s.deps.Automator.JoinMeeting(ctx, *bot.Session())
	if err != nil {
		if ctx.Err() != nil {
			log.Info("Join abandoned by leave")
			return
		}
		outcome := observability.OutcomeSetupFailed
		if domain.IsAdmissionFailure(err) {
			outcome = observability.OutcomeAdmissionFailed
		}
		s.deps.Metrics.BotJoinsTotal.WithLabelValues(outcome).Inc()
		bot.fail(err)
		log.Error("Failed to join meeting", logging.Err(err))
		return
	}
	if ctx.Err() != nil {
		// Leave owns the browser from here.
		return
	}

	engineCfg := s.settings.Engine
	engineCfg.BotID, engineCfg.SessionID = bot.id, bot.sessionID
	engine := copilot.NewEngine(engineCfg, s.deps.Completer, s.deps.Broadcaster, s.deps.Records, s.deps.Logger, s.deps.Metrics)

	stream := transcription.NewStream(transcription.Config{
		BotID:     bot.id,
		QueueSize: s.settings.AudioQueueSize,
		OnEnded: func(err error) {
			log.Warn("Transcription lost, continuing without live transcript", logging.Err(err))
		},
	}, s.deps.Speech, engine.HandleFragment, s.deps.Logger, s.deps.Metrics)

	if !bot.activate(tap, stream, engine) {
		return
	}
	s.deps.Metrics.BotJoinsTotal.WithLabelValues(observability.OutcomeAdmitted).Inc()
	s.deps.Metrics.ActiveBots.Inc()
	log.Info("Bot admitted to meeting")

	// The stream lives until shutdown stops it, not until the join context ends.
	if err := stream.Start(context.WithoutCancel(ctx), tap.Chunks()); err != nil {
		log.Error("Transcription unavailable", logging.Err(err))
	}

	go s.watchExit(bot, tap)
}

func (s *BotService) watchExit(bot *Bot, tap ports.AudioTap) {
	select {
	case <-tap.Exited():
		s.logger.Info("Meeting ended, leaving", logging.F("bot_id", bot.id))
		if _, err := s.Leave(context.Background(), bot.id); err != nil && !domain.IsNotFound(err) {
			s.logger.Warn("Automatic leave failed", logging.F("bot_id", bot.id), logging.Err(err))
		}
	case <-bot.left:
	}
}

// Leave shuts the bot down and deregisters it. Concurrent calls for the
// same bot share one shutdown.
func (s *BotService) Leave(ctx context.Context, botID string) (*domain.BotSession, error) {
	bot, ok := s.deps.Registry.Get(botID)
	if !ok {
		return nil, fmt.Errorf("bot %s: %w", botID, domain.ErrNotFound)
	}

	bot.leaveOnce.Do(func() {
		s.shutdown(context.WithoutCancel(ctx), bot)
	})
	return bot.Session(), nil
}

// shutdown runs every step even when an earlier one fails.
func (s *BotService) shutdown(ctx context.Context, bot *Bot) {
	log := s.logger.With(logging.F("bot_id", bot.id), logging.F("session_id", bot.sessionID))
	defer close(bot.left)

	bot.setState([]domain.BotState{domain.StateInitializing, domain.StateJoining, domain.StateActive}, domain.StateStopping)
	log.Info("Leaving meeting", logging.F("state", string(bot.State())))

	bot.cancelJoin()
	<-bot.joinDone

	stream, engine, joined := bot.pipeline()

	if engine != nil {
		transcript := engine.Stop(ctx)
		log.Debug("Suggestion engine stopped", logging.F("final_fragments", len(transcript)))

		report, err := s.summarizer.Summarize(ctx, bot.sessionID, transcript)
		switch {
		case errors.Is(err, domain.ErrMalformedSummary):
			log.Warn("Post-mortem output was malformed, omitting report", logging.Err(err))
		case err != nil:
			log.Warn("Post-mortem summary failed", logging.Err(err))
		case report != nil:
			log.Info("Post-mortem summary saved", logging.F("recommended_hire", report.RecommendedHire))
		}
	}

	if stream != nil {
		stream.Stop()
	}

	if err := s.deps.Automator.StopMeeting(ctx, bot.id); err != nil {
		log.Warn("Failed to close browser", logging.Err(err))
	}

	if joined {
		s.deps.Metrics.ActiveBots.Dec()
	}
	bot.finish()
	s.deps.Registry.Release(bot.id)
	log.Info("Bot left", logging.F("state", string(bot.State())))
}

func (s *BotService) Status(_ context.Context, botID string) (*domain.BotSession, error) {
	bot, ok := s.deps.Registry.Get(botID)
	if !ok {
		return nil, fmt.Errorf("bot %s: %w", botID, domain.ErrNotFound)
	}
	return bot.Session(), nil
}

func (s *BotService) List(_ context.Context) []*domain.BotSession {
	bots := s.deps.Registry.List()
	out := make([]*domain.BotSession, 0, len(bots))
	for _, b := range bots {
		out = append(out, b.Session())
	}
	return out
}

func (s *BotService) Snapshot(ctx context.Context, botID string) ([]byte, error) {
	if _, ok := s.deps.Registry.Get(botID); !ok {
		return nil, fmt.Errorf("bot %s: %w", botID, domain.ErrNotFound)
	}
	return s.deps.Automator.GetSnapshot(ctx, botID)
}

// LeaveAll shuts down every registered bot, used on process shutdown.
func (s *BotService) LeaveAll(ctx context.Context) {
	for _, b := range s.deps.Registry.List() {
		if _, err := s.Leave(ctx, b.id); err != nil && !domain.IsNotFound(err) {
			s.logger.Warn("Leave during shutdown failed", logging.F("bot_id", b.id), logging.Err(err))
		}
	}
}
