// Package pcmfile implements [audio.Capture] over a stream of raw
// little-endian int16 PCM, such as a file produced by
// `arecord -f S16_LE -r 16000 -c 1 -t raw` or a pipe from another process.
//
// By default the stream is paced to real time, one chunk per 10 ms, so a
// recording replays exactly as a live microphone would.
//
// Typical usage:
//
//	c, err := pcmfile.Open("-", pcmfile.WithFormat(audio.Format{SampleRate: 16000, Channels: 2}))
//	err = c.Start(ctx, rb.OverwriteSlice)
package pcmfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MrWong99/grenouille/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Capture = (*Capture)(nil)

const defaultChunk = 10 * time.Millisecond

// Option is a functional option for configuring a Capture.
type Option func(*Capture)

// WithFormat sets the sample rate and interleaved channel count of the input.
// Defaults to 16 kHz mono.
func WithFormat(f audio.Format) Option {
	return func(c *Capture) { c.in = f }
}

// WithChunk sets how much audio is delivered per sink call. Defaults to 10 ms.
func WithChunk(d time.Duration) Option {
	return func(c *Capture) {
		if d > 0 {
			c.chunk = d
		}
	}
}

// WithRealtime controls whether delivery is paced to the wall clock. When
// false the stream is consumed as fast as the sink accepts it.
func WithRealtime(on bool) Option {
	return func(c *Capture) { c.realtime = on }
}

// WithTargetRate resamples the input to rate before delivery.
func WithTargetRate(rate int) Option {
	return func(c *Capture) { c.targetRate = rate }
}

// Capture reads raw PCM from an io.Reader.
type Capture struct {
	r          io.Reader
	closer     io.Closer
	in         audio.Format
	targetRate int
	chunk      time.Duration
	realtime   bool
}

// New returns a Capture reading from r.
func New(r io.Reader, opts ...Option) *Capture {
	c := &Capture{
		r:        r,
		in:       audio.Format{SampleRate: audio.DefaultSampleRate, Channels: 1},
		chunk:    defaultChunk,
		realtime: true,
	}
	for _, o := range opts {
		o(c)
	}
	if c.targetRate == 0 {
		c.targetRate = c.in.SampleRate
	}
	return c
}

// Open returns a Capture reading the file at path, or standard input when
// path is "-".
func Open(path string, opts ...Option) (*Capture, error) {
	if path == "-" {
		return New(os.Stdin, opts...), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pcmfile: open %q: %w", path, err)
	}
	c := New(f, opts...)
	c.closer = f
	return c, nil
}

// Format implements [audio.Capture].
func (c *Capture) Format() audio.Format {
	return audio.Format{SampleRate: c.targetRate, Channels: 1}
}

// Start implements [audio.Capture]. It returns nil at end of stream.
func (c *Capture) Start(ctx context.Context, sink audio.Sink) error {
	if c.closer != nil {
		defer c.closer.Close()
	}

	conv := &audio.Converter{Source: c.in, TargetRate: c.targetRate}
	frameBytes := 2 * max(c.in.Channels, 1)
	framesPerChunk := max(int(int64(c.in.SampleRate)*int64(c.chunk)/int64(time.Second)), 1)
	buf := make([]byte, framesPerChunk*frameBytes)
	br := bufio.NewReader(c.r)

	var tick <-chan time.Time
	if c.realtime {
		t := time.NewTicker(c.chunk)
		defer t.Stop()
		tick = t.C
	}

	for {
		n, err := io.ReadFull(br, buf)
		if n > 0 {
			n -= n % frameBytes
			if samples := conv.Convert(buf[:n]); len(samples) > 0 {
				sink(samples)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pcmfile: read: %w", err)
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
	}
}
