package copilot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports/portstest"
	"meeting-copilot/internal/logging"
	"meeting-copilot/internal/observability"
)

const twoQuestions = "1. Tell me more about X\n- Why did you choose Y?"

type engineFixture struct {
	engine      *Engine
	completer   *portstest.Completer
	broadcaster *portstest.Broadcaster
	store       *portstest.RecordStore
}

func newEngineFixture(t *testing.T, debounce time.Duration, completer *portstest.Completer) *engineFixture {
	t.Helper()
	if completer == nil {
		completer = &portstest.Completer{Response: twoQuestions}
	}
	f := &engineFixture{
		completer:   completer,
		broadcaster: &portstest.Broadcaster{},
		store:       &portstest.RecordStore{},
	}
	f.engine = NewEngine(EngineConfig{
		BotID:               "bot-1",
		SessionID:           "sess-1",
		Debounce:            debounce,
		CarryOver:           2,
		MinSuggestionLength: 6,
		Temperature:         0.5,
		MaxTokens:           150,
		ShutdownGrace:       time.Second,
	}, f.completer, f.broadcaster, f.store, logging.NewNopLogger(), nil)
	t.Cleanup(func() { f.engine.Stop(context.Background()) })
	return f
}

func (f *engineFixture) final(text string) {
	f.engine.HandleFragment(context.Background(), domain.TranscriptFragment{Text: text, IsFinal: true, Timestamp: time.Now()})
}

func (f *engineFixture) interim(text string) {
	f.engine.HandleFragment(context.Background(), domain.TranscriptFragment{Text: text, Timestamp: time.Now()})
}

func TestEngineCoalescesBurstIntoOneCycle(t *testing.T) {
	// t=0s, 1s, 2s with an 8s debounce, scaled down by 100x.
	f := newEngineFixture(t, 80*time.Millisecond, nil)

	start := time.Now()
	f.final("I built the ingest pipeline")
	time.Sleep(10 * time.Millisecond)
	f.final("in Go with Kafka")
	time.Sleep(10 * time.Millisecond)
	f.final("and it handled a million events a day")

	require.Eventually(t, func() bool { return len(f.broadcaster.SuggestionBatches()) == 1 },
		time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	calls := f.completer.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "I built the ingest pipeline in Go with Kafka and it handled a million events a day")
	assert.Equal(t, 0.5, calls[0].Temperature)
	assert.Equal(t, 150, calls[0].MaxTokens)
	assert.Equal(t, observability.OpSuggestions, calls[0].Operation)

	batch := f.broadcaster.SuggestionBatches()[0]
	assert.Equal(t, "sess-1", batch.SessionID)
	assert.Equal(t, []string{"Tell me more about X", "Why did you choose Y?"}, batch.Batch.Suggestions)

	require.Eventually(t, func() bool { return len(f.store.Saved()) == 1 }, time.Second, 5*time.Millisecond)
	saved := f.store.Saved()[0]
	assert.Equal(t, []string{"I built the ingest pipeline", "in Go with Kafka", "and it handled a million events a day"},
		saved.Record.TranscriptChunks)
	assert.False(t, saved.Record.IsSummary())

	// No further cycle without a new fragment.
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, f.completer.Calls(), 1)
}

func TestEngineInterimIsBroadcastOnly(t *testing.T) {
	f := newEngineFixture(t, 20*time.Millisecond, nil)

	f.interim("I built the")
	time.Sleep(80 * time.Millisecond)

	assert.Empty(t, f.completer.Calls())
	events := f.broadcaster.TranscriptEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].Fragment.IsFinal)
	assert.Empty(t, f.engine.Transcript())
}

func TestEngineAtMostOneCompletionInFlight(t *testing.T) {
	release := make(chan struct{})
	completer := &portstest.Completer{
		Fn: func(ctx context.Context, _ domain.CompletionRequest) (string, error) {
			select {
			case <-release:
				return twoQuestions, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	f := newEngineFixture(t, 10*time.Millisecond, completer)

	f.final("first answer about caching")
	require.Eventually(t, func() bool { return f.engine.currentState() == stateProcessing },
		time.Second, 2*time.Millisecond)

	// These only accumulate while the call is outstanding.
	f.final("second answer")
	f.final("third answer")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, completer.Calls(), 1)
	assert.Equal(t, stateProcessing, f.engine.currentState())

	close(release)
	require.Eventually(t, func() bool { return f.engine.currentState() == stateIdle },
		time.Second, 2*time.Millisecond)

	// Idle is not rearmed automatically.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, completer.Calls(), 1)

	f.final("fourth answer")
	require.Eventually(t, func() bool { return len(completer.Calls()) == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 1, completer.MaxInFlight())

	// Carry-over tail of the first window plus everything accumulated since.
	second := completer.Calls()[1].Prompt
	assert.Contains(t, second, "first answer about caching second answer third answer fourth answer")
}

func TestEngineTrimsWindowToCarryOver(t *testing.T) {
	f := newEngineFixture(t, 10*time.Millisecond, nil)

	f.final("a1 a1")
	f.final("b2 b2")
	f.final("c3 c3")
	require.Eventually(t, func() bool { return f.engine.currentState() == stateIdle && len(f.completer.Calls()) == 1 },
		time.Second, 2*time.Millisecond)

	f.final("d4 d4")
	require.Eventually(t, func() bool { return len(f.store.Saved()) == 2 }, time.Second, 2*time.Millisecond)

	assert.Equal(t, []string{"b2 b2", "c3 c3", "d4 d4"}, f.store.Saved()[1].Record.TranscriptChunks)
}

func TestEngineFullTranscriptIsNeverTrimmed(t *testing.T) {
	f := newEngineFixture(t, 5*time.Millisecond, nil)

	var want []string
	for i := 0; i < 4; i++ {
		for _, w := range []string{"alpha", "beta", "gamma"} {
			text := strings.Repeat(w, i+1)
			want = append(want, text)
			f.final(text)
		}
		require.Eventually(t, func() bool { return len(f.completer.Calls()) == i+1 && f.engine.currentState() == stateIdle },
			time.Second, 2*time.Millisecond)
	}

	assert.Equal(t, want, f.engine.Transcript())
	assert.Equal(t, want, f.engine.Stop(context.Background()))
}

func TestEngineCompletionFailureSkipsCycle(t *testing.T) {
	completer := &portstest.Completer{Err: errors.New("rate limited")}
	f := newEngineFixture(t, 10*time.Millisecond, completer)

	f.final("some final text")
	require.Eventually(t, func() bool { return len(completer.Calls()) == 1 && f.engine.currentState() == stateIdle },
		time.Second, 2*time.Millisecond)

	assert.Empty(t, f.broadcaster.SuggestionBatches())
	assert.Empty(t, f.store.Saved())

	// The engine keeps going on the next fragment.
	f.final("more final text")
	require.Eventually(t, func() bool { return len(completer.Calls()) == 2 }, time.Second, 2*time.Millisecond)
}

func TestEngineEmptyParseEmitsNothing(t *testing.T) {
	completer := &portstest.Completer{Response: "- ok\n\n1."}
	f := newEngineFixture(t, 10*time.Millisecond, completer)

	f.final("some final text")
	require.Eventually(t, func() bool { return len(completer.Calls()) == 1 && f.engine.currentState() == stateIdle },
		time.Second, 2*time.Millisecond)

	assert.Empty(t, f.broadcaster.SuggestionBatches())
	assert.Empty(t, f.store.Saved())
}

func TestEnginePersistenceFailureStillBroadcasts(t *testing.T) {
	f := newEngineFixture(t, 10*time.Millisecond, nil)
	f.store.Err = domain.ErrPersistenceFailure

	f.final("some final text")
	require.Eventually(t, func() bool { return len(f.broadcaster.SuggestionBatches()) == 1 },
		time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return f.engine.currentState() == stateIdle }, time.Second, 2*time.Millisecond)
	assert.Len(t, f.store.Saved(), 1)
}

func TestEngineStopCancelsPendingTimer(t *testing.T) {
	f := newEngineFixture(t, 40*time.Millisecond, nil)

	f.final("said before leaving")
	transcript := f.engine.Stop(context.Background())
	assert.Equal(t, []string{"said before leaving"}, transcript)

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, f.completer.Calls())
	assert.Equal(t, stateStopped, f.engine.currentState())
}

func TestEngineStopWaitsForInFlightCycle(t *testing.T) {
	completer := &portstest.Completer{Response: twoQuestions, Delay: 60 * time.Millisecond}
	f := newEngineFixture(t, 5*time.Millisecond, completer)

	f.final("some final text")
	require.Eventually(t, func() bool { return f.engine.currentState() == stateProcessing },
		time.Second, time.Millisecond)

	f.engine.Stop(context.Background())

	assert.Len(t, f.broadcaster.SuggestionBatches(), 1)
	assert.Len(t, f.store.Saved(), 1)
}

func TestEngineStopDetachesSlowCycle(t *testing.T) {
	completer := &portstest.Completer{
		Fn: func(ctx context.Context, _ domain.CompletionRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	f := newEngineFixture(t, 5*time.Millisecond, completer)

	f.final("some final text")
	require.Eventually(t, func() bool { return f.engine.currentState() == stateProcessing },
		time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	f.engine.Stop(ctx)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.broadcaster.SuggestionBatches())
	assert.Equal(t, stateStopped, f.engine.currentState())
}

func TestEngineIgnoresFragmentsAfterStop(t *testing.T) {
	f := newEngineFixture(t, 5*time.Millisecond, nil)

	f.engine.Stop(context.Background())
	f.final("late text")
	f.interim("late interim")

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, f.broadcaster.TranscriptEvents())
	assert.Empty(t, f.completer.Calls())
	assert.Empty(t, f.engine.Transcript())
}
