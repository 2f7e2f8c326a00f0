package rod

import (
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ysmood/gson"
)

// audioTap receives PCM chunks from the page binding. Producers never
// block: a full buffer drops the chunk.
type audioTap struct {
	mu       sync.Mutex
	chunks   chan []byte
	closed   bool
	exited   chan struct{}
	exitOnce sync.Once
	dropped  atomic.Int64
}

func newAudioTap(size int) *audioTap {
	if size <= 0 {
		size = 1
	}
	return &audioTap{
		chunks: make(chan []byte, size),
		exited: make(chan struct{}),
	}
}

func (t *audioTap) Chunks() <-chan []byte   { return t.chunks }
func (t *audioTap) Exited() <-chan struct{} { return t.exited }

func (t *audioTap) push(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.chunks <- chunk:
	default:
		t.dropped.Add(1)
	}
}

func (t *audioTap) markExited() {
	t.exitOnce.Do(func() { close(t.exited) })
}

func (t *audioTap) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.chunks)
	}
}

// handleBinding decodes one payload of the form {data: <base64 PCM>}.
func (t *audioTap) handleBinding(payload gson.JSON) (interface{}, error) {
	chunk, err := decodeChunk(payload)
	if err != nil {
		return nil, err
	}
	if len(chunk) > 0 {
		t.push(chunk)
	}
	return nil, nil
}

func decodeChunk(payload gson.JSON) ([]byte, error) {
	data := payload.Get("data").Str()
	chunk, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding audio chunk: %w", err)
	}
	if len(chunk)%2 != 0 {
		return nil, fmt.Errorf("odd PCM16 chunk length %d", len(chunk))
	}
	return chunk, nil
}
