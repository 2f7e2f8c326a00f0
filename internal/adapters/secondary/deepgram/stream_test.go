package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/logging"
)

func results(text string, final bool) string {
	f := "false"
	if final {
		f = "true"
	}
	return `{"type":"Results","is_final":` + f + `,"channel":{"alternatives":[{"transcript":"` + text + `","confidence":0.98}]}}`
}

// fakeDeepgram answers every binary frame with the scripted messages and
// closes normally on CloseStream.
type fakeDeepgram struct {
	t        *testing.T
	replies  []string
	query    chan url.Values
	auth     chan string
	binary   chan []byte
	text     chan string
	hangUp   bool
	upgrader websocket.Upgrader
}

func newFakeDeepgram(t *testing.T, replies ...string) *fakeDeepgram {
	return &fakeDeepgram{
		t:       t,
		replies: replies,
		query:   make(chan url.Values, 1),
		auth:    make(chan string, 1),
		binary:  make(chan []byte, 16),
		text:    make(chan string, 16),
	}
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.query <- r.URL.Query()
	f.auth <- r.Header.Get("Authorization")
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			f.binary <- data
			for _, reply := range f.replies {
				_ = ws.WriteMessage(websocket.TextMessage, []byte(reply))
			}
			if f.hangUp {
				return
			}
		case websocket.TextMessage:
			f.text <- string(data)
			if strings.Contains(string(data), "CloseStream") {
				_ = ws.WriteMessage(websocket.TextMessage, []byte(results("final words", true)))
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

func startProvider(t *testing.T, f *fakeDeepgram, keepAlive time.Duration) *Provider {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewProvider(Config{
		APIKey:            "dg-key",
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/listen",
		Model:             "nova-2",
		Language:          "en-US",
		SampleRate:        16000,
		Channels:          1,
		KeepAliveInterval: keepAlive,
	}, logging.NewNopLogger())
}

func collect(t *testing.T, ch <-chan domain.TranscriptFragment, n int) []domain.TranscriptFragment {
	t.Helper()
	var out []domain.TranscriptFragment
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case f, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatalf("received %d of %d fragments", len(out), n)
		}
	}
	return out
}

func TestConnectStreamsResults(t *testing.T) {
	f := newFakeDeepgram(t,
		`{"type":"Metadata","request_id":"r1"}`,
		results("", false),
		results("I built", false),
		results("I built the billing service", true),
	)
	p := startProvider(t, f, 0)

	conn, err := p.Connect(context.Background(), "bot-1")
	require.NoError(t, err)

	q := <-f.query
	assert.Equal(t, "nova-2", q.Get("model"))
	assert.Equal(t, "en-US", q.Get("language"))
	assert.Equal(t, "true", q.Get("smart_format"))
	assert.Equal(t, "true", q.Get("interim_results"))
	assert.Equal(t, "linear16", q.Get("encoding"))
	assert.Equal(t, "16000", q.Get("sample_rate"))
	assert.Equal(t, "1", q.Get("channels"))
	assert.Equal(t, "Token dg-key", <-f.auth)

	require.NoError(t, conn.Send([]byte{1, 0, 2, 0}))
	require.NoError(t, conn.Send(nil))
	assert.Equal(t, []byte{1, 0, 2, 0}, <-f.binary)

	got := collect(t, conn.Results(), 2)
	assert.Equal(t, "I built", got[0].Text)
	assert.False(t, got[0].IsFinal)
	assert.Equal(t, "I built the billing service", got[1].Text)
	assert.True(t, got[1].IsFinal)

	require.NoError(t, conn.Close())
	assert.Equal(t, `{"type":"CloseStream"}`, <-f.text)

	flushed := collect(t, conn.Results(), 1)
	require.Len(t, flushed, 1)
	assert.Equal(t, "final words", flushed[0].Text)

	<-conn.Done()
	assert.NoError(t, conn.Err())
	assert.NoError(t, conn.Close())
	assert.Error(t, conn.Send([]byte{1, 0}))
}

func TestProviderHangUpReportsError(t *testing.T) {
	f := newFakeDeepgram(t)
	f.hangUp = true
	p := startProvider(t, f, 0)

	conn, err := p.Connect(context.Background(), "bot-1")
	require.NoError(t, err)
	require.NoError(t, conn.Send([]byte{0, 0}))

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection not done after provider hang-up")
	}
	assert.Error(t, conn.Err())
	_, open := <-conn.Results()
	assert.False(t, open)
}

func TestKeepAlive(t *testing.T) {
	f := newFakeDeepgram(t)
	p := startProvider(t, f, 20*time.Millisecond)

	conn, err := p.Connect(context.Background(), "bot-1")
	require.NoError(t, err)
	defer conn.Close()

	select {
	case msg := <-f.text:
		assert.Equal(t, `{"type":"KeepAlive"}`, msg)
	case <-time.After(time.Second):
		t.Fatal("no keep-alive sent")
	}
}

func TestConnectRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewProvider(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Model: "nova-2"}, logging.NewNopLogger())
	_, err := p.Connect(context.Background(), "bot-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestListenURLKeepsExistingQuery(t *testing.T) {
	u, err := listenURL(Config{URL: "wss://api.deepgram.com/v1/listen?tier=enhanced", Model: "nova-2", SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "enhanced", parsed.Query().Get("tier"))
	assert.Equal(t, "48000", parsed.Query().Get("sample_rate"))
	assert.Empty(t, parsed.Query().Get("language"))
}
