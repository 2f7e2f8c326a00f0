// Package deepgram streams meeting audio to Deepgram's live transcription
// websocket and surfaces its results as transcript fragments.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/logging"
)

const (
	writeTimeout = 10 * time.Second
	// flushTimeout bounds how long Close waits for the final results after
	// CloseStream.
	flushTimeout = 2 * time.Second
)

type Config struct {
	APIKey            string
	URL               string
	Model             string
	Language          string
	SampleRate        int
	Channels          int
	KeepAliveInterval time.Duration
}

// Provider opens one live transcription connection per bot.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
	logger logging.Logger
}

var _ ports.SpeechToText = (*Provider)(nil)

func NewProvider(cfg Config, logger logging.Logger) *Provider {
	return &Provider{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logger.With(logging.F("component", "deepgram")),
	}
}

// Connect dials the provider. ctx bounds the handshake only.
func (p *Provider) Connect(ctx context.Context, botID string) (ports.SpeechConnection, error) {
	endpoint, err := listenURL(p.cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+p.cfg.APIKey)

	ws, resp, err := p.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing deepgram: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dialing deepgram: %w", err)
	}

	c := &connection{
		ws:      ws,
		results: make(chan domain.TranscriptFragment, 64),
		done:    make(chan struct{}),
		logger:  p.logger.With(logging.F("bot_id", botID)),
	}
	go c.readLoop()
	if p.cfg.KeepAliveInterval > 0 {
		go c.keepAlive(p.cfg.KeepAliveInterval)
	}

	c.logger.Debug("Deepgram connection open", logging.F("model", p.cfg.Model))
	return c, nil
}

func listenURL(cfg Config) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram url %q: %w", cfg.URL, err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// message is the subset of a live response the copilot reads.
type message struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// fragment returns the transcript carried by a Results message, if any.
func (m message) fragment() (domain.TranscriptFragment, bool) {
	if m.Type != "Results" || len(m.Channel.Alternatives) == 0 {
		return domain.TranscriptFragment{}, false
	}
	text := m.Channel.Alternatives[0].Transcript
	if text == "" {
		return domain.TranscriptFragment{}, false
	}
	return domain.TranscriptFragment{
		Text:      text,
		IsFinal:   m.IsFinal,
		Timestamp: time.Now().UTC(),
	}, true
}

type connection struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	results chan domain.TranscriptFragment
	done    chan struct{}
	logger  logging.Logger

	errMu     sync.Mutex
	err       error
	closing   atomic.Bool
	closeOnce sync.Once
}

func (c *connection) Results() <-chan domain.TranscriptFragment { return c.results }
func (c *connection) Done() <-chan struct{}                     { return c.done }

func (c *connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send forwards one PCM chunk. Empty chunks are skipped; Deepgram reads an
// empty frame as end of stream.
func (c *connection) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if c.closing.Load() {
		return errors.New("deepgram connection closing")
	}
	return c.write(websocket.BinaryMessage, chunk)
}

func (c *connection) write(kind int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(kind, data)
}

func (c *connection) readLoop() {
	var err error
	defer func() {
		if c.closing.Load() {
			err = nil
		}
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
		close(c.results)
	}()

	for {
		var data []byte
		_, data, err = c.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg message
		if jsonErr := json.Unmarshal(data, &msg); jsonErr != nil {
			c.logger.Warn("Ignoring undecodable deepgram message", logging.Err(jsonErr))
			continue
		}
		if f, ok := msg.fragment(); ok {
			c.results <- f
		}
	}
}

func (c *connection) keepAlive(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.closing.Load() {
				return
			}
			if err := c.write(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				c.logger.Debug("Keep-alive failed", logging.Err(err))
				return
			}
		}
	}
}

// Close asks Deepgram to flush pending results, waits briefly for them and
// closes the socket. Results already received are still delivered.
func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		if werr := c.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); werr == nil {
			select {
			case <-c.done:
			case <-time.After(flushTimeout):
			}
		}

		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.ws.Close()
		<-c.done
		c.logger.Debug("Deepgram connection closed")
	})
	return nil
}
