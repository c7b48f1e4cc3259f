package resilience

import (
	"context"

	"github.com/MrWong99/grenouille/pkg/provider/tts"
)

// SynthFallback implements [tts.Synthesizer] with automatic failover across
// multiple synthesis backends. Failover happens before playback starts, so a
// listener never hears a reply twice.
type SynthFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

var _ tts.Synthesizer = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred
// backend.
func NewSynthFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *SynthFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &SynthFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional synthesizer as a fallback.
func (f *SynthFallback) AddFallback(name string, s tts.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Synthesize returns the clip from the first healthy synthesizer.
func (f *SynthFallback) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return ExecuteWithResult(ctx, f.group, func(s tts.Synthesizer) ([]byte, error) {
		return s.Synthesize(ctx, text)
	})
}

// Check reports whether any backend is available. See [FallbackGroup.Check].
func (f *SynthFallback) Check(ctx context.Context) error { return f.group.Check(ctx) }
