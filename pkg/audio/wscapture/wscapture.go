// Package wscapture implements [audio.Capture] for a remote microphone that
// streams audio over a WebSocket. Each binary message carries interleaved
// little-endian int16 PCM in the format configured on the server; text
// messages are ignored. Only the first channel is kept.
//
// The [Server] is both the capture source and the http.Handler that the remote
// device connects to. Only one device may stream at a time.
//
// Typical usage:
//
//	src := wscapture.New(audio.Format{SampleRate: 16000, Channels: 1})
//	mux.Handle("/capture", src)
//	go src.Start(ctx, rb.OverwriteSlice)
package wscapture

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/grenouille/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Capture = (*Server)(nil)
	_ http.Handler  = (*Server)(nil)
)

const defaultReadLimit = 1 << 20

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithTargetRate resamples incoming audio to rate before delivery.
func WithTargetRate(rate int) Option {
	return func(s *Server) { s.targetRate = rate }
}

// WithOriginPatterns sets the host patterns allowed to connect from a browser.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// Server accepts a single streaming client and forwards its audio to the sink
// registered by Start.
type Server struct {
	in             audio.Format
	targetRate     int
	originPatterns []string

	mu       sync.Mutex
	sink     audio.Sink
	ready    chan struct{}
	busy     bool
	lastRecv atomic.Int64 // unix nanos of the most recent audio message
}

// New returns a Server expecting input in format in.
func New(in audio.Format, opts ...Option) *Server {
	s := &Server{in: in, ready: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	if s.targetRate == 0 {
		s.targetRate = in.SampleRate
	}
	return s
}

// Format implements [audio.Capture].
func (s *Server) Format() audio.Format {
	return audio.Format{SampleRate: s.targetRate, Channels: 1}
}

// Start implements [audio.Capture]. It registers sink and blocks until ctx is
// cancelled; audio arrives through [Server.ServeHTTP].
func (s *Server) Start(ctx context.Context, sink audio.Sink) error {
	s.mu.Lock()
	if s.sink != nil {
		s.mu.Unlock()
		return errors.New("wscapture: already started")
	}
	s.sink = sink
	close(s.ready)
	s.mu.Unlock()

	<-ctx.Done()
	return nil
}

// LastAudio returns when the most recent audio message arrived, or the zero
// time if none has.
func (s *Server) LastAudio() time.Time {
	ns := s.lastRecv.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ServeHTTP upgrades the request and streams its audio to the sink.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		http.Error(w, "a capture client is already connected", http.StatusConflict)
		return
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Warn("wscapture: accept failed", "err", err)
		return
	}
	conn.SetReadLimit(defaultReadLimit)
	defer conn.CloseNow()

	ctx := r.Context()
	select {
	case <-s.ready:
	case <-ctx.Done():
		return
	}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()

	slog.Info("wscapture: client connected", "remote", r.RemoteAddr)
	conv := &audio.Converter{Source: s.in, TargetRate: s.targetRate}
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				slog.Info("wscapture: client disconnected", "remote", r.RemoteAddr)
			} else if ctx.Err() == nil {
				slog.Warn("wscapture: read failed", "remote", r.RemoteAddr, "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if samples := conv.Convert(data); len(samples) > 0 {
			s.lastRecv.Store(time.Now().UnixNano())
			sink(samples)
		}
	}
}
