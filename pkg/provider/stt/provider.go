// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// The listening pipeline segments utterances itself, so transcription is a
// batch operation: one call per finished utterance, mono float32 samples in,
// text segments out. Backends wrap an in-process model (whisper.cpp) or a
// remote inference server.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoAudio is returned when Transcribe is called with zero samples.
var ErrNoAudio = errors.New("stt: no audio to transcribe")

// Segment is one span of recognized text.
type Segment struct {
	// Text is the raw recognized text, including any bracketed annotations
	// such as "[MUSIC]" the model produced.
	Text string

	// Start and End are offsets from the start of the submitted audio. Zero
	// when the backend does not report timing.
	Start time.Duration
	End   time.Duration
}

// Transcriber converts one utterance of audio to text.
type Transcriber interface {
	// Transcribe recognizes speech in samples recorded at sampleRate. Returns
	// [ErrNoAudio] for an empty slice, or an error if the backend fails or ctx
	// is cancelled.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]Segment, error)
}

// JoinText concatenates the raw text of segs separated by single spaces.
func JoinText(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
