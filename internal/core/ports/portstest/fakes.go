// Package portstest provides in-memory fakes of the driven ports for tests.
package portstest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
)

// Completer records prompts and answers from a canned response or a hook.
type Completer struct {
	mu       sync.Mutex
	Requests []domain.CompletionRequest

	// Response is returned when Fn is nil.
	Response string
	Err      error
	// Delay holds every call open, honouring ctx.
	Delay time.Duration
	Fn    func(ctx context.Context, req domain.CompletionRequest) (string, error)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		cur := c.maxInFlight.Load()
		if n <= cur || c.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	fn, resp, err, delay := c.Fn, c.Response, c.Err, c.Delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// Calls returns a copy of the received requests.
func (c *Completer) Calls() []domain.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.CompletionRequest(nil), c.Requests...)
}

// MaxInFlight is the highest number of concurrent Complete calls observed.
func (c *Completer) MaxInFlight() int {
	return int(c.maxInFlight.Load())
}

type PublishedTranscript struct {
	SessionID string
	Fragment  domain.TranscriptFragment
}

type PublishedSuggestions struct {
	SessionID string
	Batch     domain.SuggestionBatch
}

type Broadcaster struct {
	mu          sync.Mutex
	Transcripts []PublishedTranscript
	Suggestions []PublishedSuggestions
	Err         error
}

func (b *Broadcaster) PublishTranscript(_ context.Context, sessionID string, f domain.TranscriptFragment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Transcripts = append(b.Transcripts, PublishedTranscript{SessionID: sessionID, Fragment: f})
	return b.Err
}

func (b *Broadcaster) PublishSuggestions(_ context.Context, sessionID string, batch domain.SuggestionBatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Suggestions = append(b.Suggestions, PublishedSuggestions{SessionID: sessionID, Batch: batch})
	return b.Err
}

func (b *Broadcaster) SuggestionBatches() []PublishedSuggestions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PublishedSuggestions(nil), b.Suggestions...)
}

func (b *Broadcaster) TranscriptEvents() []PublishedTranscript {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PublishedTranscript(nil), b.Transcripts...)
}

type SavedRecord struct {
	SessionID string
	Record    domain.CopilotRecord
}

type RecordStore struct {
	mu      sync.Mutex
	Records []SavedRecord
	Err     error
}

func (s *RecordStore) SaveCopilotRecord(_ context.Context, sessionID string, rec domain.CopilotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, SavedRecord{SessionID: sessionID, Record: rec})
	return s.Err
}

func (s *RecordStore) Saved() []SavedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SavedRecord(nil), s.Records...)
}

// Summaries returns only the records that carry a post-mortem report.
func (s *RecordStore) Summaries() []SavedRecord {
	var out []SavedRecord
	for _, r := range s.Saved() {
		if r.Record.IsSummary() {
			out = append(out, r)
		}
	}
	return out
}

// AudioTap is a manually driven tap.
type AudioTap struct {
	C        chan []byte
	ExitedCh chan struct{}
	once     sync.Once
}

func NewAudioTap(size int) *AudioTap {
	return &AudioTap{C: make(chan []byte, size), ExitedCh: make(chan struct{})}
}

func (t *AudioTap) Chunks() <-chan []byte   { return t.C }
func (t *AudioTap) Exited() <-chan struct{} { return t.ExitedCh }

// Exit simulates the meeting ending.
func (t *AudioTap) Exit() {
	t.once.Do(func() { close(t.ExitedCh) })
}

// MeetingAutomator joins instantly unless JoinFn is set.
type MeetingAutomator struct {
	mu      sync.Mutex
	Joins   []domain.BotSession
	Stops   []string
	JoinFn  func(ctx context.Context, s domain.BotSession) (ports.AudioTap, error)
	Taps    map[string]*AudioTap
	StopErr error
}

func (m *MeetingAutomator) JoinMeeting(ctx context.Context, s domain.BotSession) (ports.AudioTap, error) {
	m.mu.Lock()
	m.Joins = append(m.Joins, s)
	fn := m.JoinFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, s)
	}
	tap := NewAudioTap(16)
	m.mu.Lock()
	if m.Taps == nil {
		m.Taps = make(map[string]*AudioTap)
	}
	m.Taps[s.ID] = tap
	m.mu.Unlock()
	return tap, nil
}

func (m *MeetingAutomator) StopMeeting(_ context.Context, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stops = append(m.Stops, botID)
	return m.StopErr
}

func (m *MeetingAutomator) GetSnapshot(_ context.Context, botID string) ([]byte, error) {
	return []byte("png:" + botID), nil
}

func (m *MeetingAutomator) JoinCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Joins)
}

func (m *MeetingAutomator) StopCount(botID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.Stops {
		if id == botID {
			n++
		}
	}
	return n
}

func (m *MeetingAutomator) Tap(botID string) *AudioTap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Taps[botID]
}

// SpeechConnection is a controllable provider connection.
type SpeechConnection struct {
	mu       sync.Mutex
	Sent     [][]byte
	SendHook func(chunk []byte)
	results  chan domain.TranscriptFragment
	done     chan struct{}
	once     sync.Once
	err      error
	closed   atomic.Int32
}

func NewSpeechConnection() *SpeechConnection {
	return &SpeechConnection{
		results: make(chan domain.TranscriptFragment, 64),
		done:    make(chan struct{}),
	}
}

func (c *SpeechConnection) Send(chunk []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	if c.SendHook != nil {
		c.SendHook(chunk)
	}
	c.mu.Lock()
	c.Sent = append(c.Sent, chunk)
	c.mu.Unlock()
	return nil
}

func (c *SpeechConnection) Results() <-chan domain.TranscriptFragment { return c.results }
func (c *SpeechConnection) Done() <-chan struct{}                     { return c.done }

func (c *SpeechConnection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Emit delivers a provider result.
func (c *SpeechConnection) Emit(text string, isFinal bool) {
	c.results <- domain.TranscriptFragment{Text: text, IsFinal: isFinal, Timestamp: time.Now()}
}

// Drop simulates the provider closing the connection with err.
func (c *SpeechConnection) Drop(err error) {
	c.finish(err)
}

func (c *SpeechConnection) Close() error {
	c.closed.Add(1)
	c.finish(nil)
	return nil
}

func (c *SpeechConnection) CloseCount() int {
	return int(c.closed.Load())
}

func (c *SpeechConnection) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

func (c *SpeechConnection) finish(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		close(c.results)
	})
}

// SpeechToText opens a fresh SpeechConnection per bot, or fails with Err.
type SpeechToText struct {
	mu    sync.Mutex
	Err   error
	conns map[string]*SpeechConnection
	last  *SpeechConnection
}

func (s *SpeechToText) Connect(_ context.Context, botID string) (ports.SpeechConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.conns == nil {
		s.conns = make(map[string]*SpeechConnection)
	}
	c := NewSpeechConnection()
	s.conns[botID] = c
	s.last = c
	return c, nil
}

// ConnFor returns the connection opened for botID, or nil.
func (s *SpeechToText) ConnFor(botID string) *SpeechConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[botID]
}

// Last returns the most recently opened connection, or nil.
func (s *SpeechToText) Last() *SpeechConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
