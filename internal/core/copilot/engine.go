// Package copilot turns a live transcript into interviewer suggestions and
// a post-mortem report.
package copilot

import (
	"context"
	"strings"
	"sync"
	"time"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/logging"
	"meeting-copilot/internal/observability"
)

type engineState int

const (
	stateIdle engineState = iota
	stateScheduled
	stateProcessing
	stateStopped
)

func (s engineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateScheduled:
		return "scheduled"
	case stateProcessing:
		return "processing"
	default:
		return "stopped"
	}
}

// EngineConfig tunes one Engine.
type EngineConfig struct {
	BotID     string
	SessionID string

	Debounce            time.Duration
	CarryOver           int
	MinSuggestionLength int
	Temperature         float64
	MaxTokens           int
	// ShutdownGrace bounds how long Stop waits for an in-flight cycle.
	ShutdownGrace time.Duration
}

// Engine debounces final transcript fragments into suggestion cycles.
// One debounce timer is armed at a time and at most one completion is in
// flight; fragments arriving while a cycle runs only accumulate.
type Engine struct {
	cfg         EngineConfig
	completer   ports.Completer
	broadcaster ports.Broadcaster
	store       ports.RecordStore
	logger      logging.Logger
	metrics     *observability.Metrics

	cycleCtx     context.Context
	cancelCycles context.CancelFunc
	cycles       sync.WaitGroup

	mu     sync.Mutex
	state  engineState
	timer  *time.Timer
	window []string
	full   []string
}

func NewEngine(cfg EngineConfig, completer ports.Completer, broadcaster ports.Broadcaster, store ports.RecordStore, logger logging.Logger, metrics *observability.Metrics) *Engine {
	if metrics == nil {
		metrics = observability.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:          cfg,
		completer:    completer,
		broadcaster:  broadcaster,
		store:        store,
		metrics:      metrics,
		cycleCtx:     ctx,
		cancelCycles: cancel,
		logger: logger.With(
			logging.F("component", "suggestion_engine"),
			logging.F("bot_id", cfg.BotID),
			logging.F("session_id", cfg.SessionID),
		),
	}
}

// HandleFragment broadcasts f and, when it is final, feeds it to the
// window and the full transcript. Fragments after Stop are ignored.
func (e *Engine) HandleFragment(ctx context.Context, f domain.TranscriptFragment) {
	e.mu.Lock()
	if e.state == stateStopped {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.metrics.TranscriptFragmentsTotal.WithLabelValues(observability.FragmentKind(f.IsFinal)).Inc()
	if err := e.broadcaster.PublishTranscript(ctx, e.cfg.SessionID, f); err != nil {
		e.metrics.BroadcastFailuresTotal.WithLabelValues("transcript").Inc()
		e.logger.Debug("Transcript broadcast failed", logging.Err(err))
	}

	if !f.IsFinal || strings.TrimSpace(f.Text) == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateStopped {
		return
	}
	e.window = append(e.window, f.Text)
	e.full = append(e.full, f.Text)
	if e.state == stateIdle {
		e.state = stateScheduled
		e.timer = time.AfterFunc(e.cfg.Debounce, e.fire)
	}
}

func (e *Engine) fire() {
	e.mu.Lock()
	if e.state != stateScheduled {
		e.mu.Unlock()
		return
	}
	e.state = stateProcessing
	e.timer = nil
	snapshot := append([]string(nil), e.window...)
	if len(e.window) > e.cfg.CarryOver {
		e.window = append([]string(nil), e.window[len(e.window)-e.cfg.CarryOver:]...)
	}
	e.cycles.Add(1)
	e.mu.Unlock()

	defer e.cycles.Done()
	e.runCycle(e.cycleCtx, snapshot)

	e.mu.Lock()
	if e.state == stateProcessing {
		e.state = stateIdle
	}
	e.mu.Unlock()
}

func (e *Engine) runCycle(ctx context.Context, chunks []string) {
	segment := strings.Join(chunks, " ")
	e.logger.Debug("Requesting suggestions", logging.F("chunks", len(chunks)))

	start := time.Now()
	raw, err := e.completer.Complete(ctx, domain.CompletionRequest{
		Operation:   observability.OpSuggestions,
		Prompt:      buildSuggestionPrompt(segment),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	e.metrics.CompletionSeconds.WithLabelValues(observability.OpSuggestions).Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.SuggestionCyclesTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		e.logger.Warn("Suggestion completion failed", logging.Err(err))
		return
	}

	suggestions := ParseSuggestions(raw, e.cfg.MinSuggestionLength)
	if len(suggestions) == 0 {
		e.metrics.SuggestionCyclesTotal.WithLabelValues(observability.OutcomeEmpty).Inc()
		return
	}

	batch := domain.SuggestionBatch{Suggestions: suggestions, Timestamp: time.Now().UTC()}
	if err := e.broadcaster.PublishSuggestions(ctx, e.cfg.SessionID, batch); err != nil {
		e.metrics.BroadcastFailuresTotal.WithLabelValues("suggestions").Inc()
		e.logger.Warn("Suggestion broadcast failed", logging.Err(err))
	}

	record := domain.CopilotRecord{Suggestions: suggestions, TranscriptChunks: chunks}
	if err := e.store.SaveCopilotRecord(ctx, e.cfg.SessionID, record); err != nil {
		e.metrics.PersistenceFailuresTotal.WithLabelValues(observability.OpSuggestions).Inc()
		e.logger.Warn("Failed to persist suggestions", logging.Err(err))
	}

	e.metrics.SuggestionCyclesTotal.WithLabelValues(observability.OutcomeEmitted).Inc()
	e.logger.Info("Sent suggestions", logging.F("count", len(suggestions)))
}

// Stop cancels the pending timer and waits for an in-flight cycle until
// ctx is done or ShutdownGrace elapses, after which the cycle's context is
// cancelled. It returns every final fragment seen, in arrival order.
// Stop is idempotent.
func (e *Engine) Stop(ctx context.Context) []string {
	e.mu.Lock()
	if e.state != stateStopped {
		prev := e.state
		e.state = stateStopped
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.mu.Unlock()

		if prev == stateProcessing {
			e.awaitCycle(ctx)
		}
		e.cancelCycles()
		e.mu.Lock()
	}
	defer e.mu.Unlock()
	return append([]string(nil), e.full...)
}

func (e *Engine) awaitCycle(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		e.cycles.Wait()
		close(done)
	}()

	grace := time.NewTimer(e.cfg.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("Detaching in-flight suggestion cycle", logging.Err(ctx.Err()))
	case <-grace.C:
		e.logger.Warn("Detaching in-flight suggestion cycle after grace period")
	}
}

// Transcript returns a copy of every final fragment seen so far.
func (e *Engine) Transcript() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.full...)
}

func (e *Engine) currentState() engineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
