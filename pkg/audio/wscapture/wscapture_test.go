package wscapture_test

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/audio/wscapture"
)

type collector struct {
	mu      sync.Mutex
	samples []audio.Sample
}

func (c *collector) sink(s []audio.Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s...)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestServer_StreamsFirstChannel(t *testing.T) {
	t.Parallel()

	src := wscapture.New(audio.Format{SampleRate: 16000, Channels: 2})
	srv := httptest.NewServer(src)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	col := &collector{}
	go func() { _ = src.Start(ctx, col.sink) }()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// 160 stereo frames; left = 0.5, right = -1.
	msg := make([]byte, 160*4)
	for i := range 160 {
		binary.LittleEndian.PutUint16(msg[i*4:], uint16(16384))
		binary.LittleEndian.PutUint16(msg[i*4+2:], uint16(0x8000))
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte("hello")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, msg); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for col.len() < 160 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := col.len(); got != 160 {
		t.Fatalf("received %d samples, want 160", got)
	}
	col.mu.Lock()
	for i, s := range col.samples {
		if s != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, s)
		}
	}
	col.mu.Unlock()

	if src.LastAudio().IsZero() {
		t.Error("LastAudio not updated")
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func TestServer_RejectsSecondClient(t *testing.T) {
	t.Parallel()

	src := wscapture.New(audio.Format{SampleRate: 16000, Channels: 1})
	srv := httptest.NewServer(src)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = src.Start(ctx, func([]audio.Sample) {}) }()

	first, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.CloseNow()

	// Make sure the first handler is running before the second dial.
	if err := first.Write(ctx, websocket.MessageBinary, make([]byte, 320)); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for src.LastAudio().IsZero() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	_, resp, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err == nil {
		t.Fatal("expected second dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("second dial response = %v, want 409", resp)
	}
}

func TestServer_StartTwice(t *testing.T) {
	t.Parallel()

	src := wscapture.New(audio.Format{SampleRate: 16000, Channels: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Start(ctx, func([]audio.Sample) {}) }()

	time.Sleep(20 * time.Millisecond)
	if err := src.Start(ctx, func([]audio.Sample) {}); err == nil {
		t.Error("expected error from second Start")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("first Start returned %v", err)
	}
}
