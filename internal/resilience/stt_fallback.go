package resilience

import (
	"context"

	"github.com/MrWong99/grenouille/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with automatic failover across
// multiple STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the first healthy transcriber. [stt.ErrNoAudio] is returned
// immediately; no backend can do better with empty input.
func (f *STTFallback) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]stt.Segment, error) {
	if len(samples) == 0 {
		return nil, stt.ErrNoAudio
	}
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) ([]stt.Segment, error) {
		return t.Transcribe(ctx, samples, sampleRate)
	})
}

// Check reports whether any backend is available. See [FallbackGroup.Check].
func (f *STTFallback) Check(ctx context.Context) error { return f.group.Check(ctx) }
