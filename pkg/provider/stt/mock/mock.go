// Package mock provides a test double for the stt.Transcriber interface.
//
// Example:
//
//	tr := &mock.Transcriber{Segments: []stt.Segment{{Text: " Computer, what time is it?"}}}
//	segs, _ := tr.Transcribe(ctx, samples, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/grenouille/pkg/provider/stt"
)

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the audio passed to Transcribe.
	Samples []float32
	// SampleRate is the rate argument passed to Transcribe.
	SampleRate int
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Segments is returned by every successful Transcribe call.
	Segments []stt.Segment

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Segments, Err.
func (m *Transcriber) Transcribe(_ context.Context, samples []float32, sampleRate int) ([]stt.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	m.Calls = append(m.Calls, TranscribeCall{Samples: cp, SampleRate: sampleRate})
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Segments, nil
}

// CallCount returns the number of Transcribe calls so far. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}
