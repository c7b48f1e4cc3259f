// Package tts defines the interfaces for text-to-speech backends.
//
// A Speaker turns a reply into audible speech and blocks until playback has
// finished. Backends that only produce audio (HTTP synthesis servers) implement
// Synthesizer instead and are combined with a Player through NewSpeaker.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyText is returned when asked to speak blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Speaker speaks text aloud.
type Speaker interface {
	// Speak synthesises and plays text, returning once playback is complete.
	Speak(ctx context.Context, text string) error
}

// Synthesizer produces a WAV clip for text without playing it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays an in-memory WAV clip.
type Player interface {
	PlayWAV(ctx context.Context, wav []byte) error
}

// SynthSpeaker adapts a Synthesizer and a Player into a Speaker.
type SynthSpeaker struct {
	synth  Synthesizer
	player Player
}

var _ Speaker = (*SynthSpeaker)(nil)

// NewSpeaker returns a Speaker that synthesises with s and plays with p.
func NewSpeaker(s Synthesizer, p Player) *SynthSpeaker {
	return &SynthSpeaker{synth: s, player: p}
}

// Speak implements Speaker.
func (s *SynthSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	wav, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("tts: synthesize: %w", err)
	}
	if err := s.player.PlayWAV(ctx, wav); err != nil {
		return fmt.Errorf("tts: play: %w", err)
	}
	return nil
}
