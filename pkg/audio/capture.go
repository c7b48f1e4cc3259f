// Package audio holds the sample-level building blocks of the listening
// pipeline: the rolling [RingBuffer] that capture writes into, frame
// extraction for the classifiers, PCM conversion helpers and the [Capture]
// abstraction implemented by the input sources.
//
// Capture sources live in sub-packages (audio/pcmfile, audio/wscapture) and
// only ever call [RingBuffer.OverwriteSlice]. Everything else on the buffer is
// driven by the poll loop.
//
// This package lives under pkg/ because external code is expected to provide
// its own [Capture] implementations (e.g. a cgo PortAudio binding).
package audio

import "context"

// Sink receives mono samples from a capture source. It is invoked on the
// source's own goroutine and must not block.
type Sink func(samples []Sample)

// Capture is an audio input device or stream.
//
// Implementations deliver mono samples at the rate reported by [Capture.Format]
// to the sink passed to Start. Interleaved multi-channel input is reduced to its
// first channel before it reaches the sink.
type Capture interface {
	// Start begins delivering samples and blocks until ctx is cancelled or the
	// source is exhausted. A source that ends on its own returns nil.
	Start(ctx context.Context, sink Sink) error

	// Format returns the format of the samples handed to the sink. Channels is
	// always 1.
	Format() Format
}
