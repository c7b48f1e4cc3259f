// Package mock provides test doubles for the tts interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/grenouille/pkg/provider/tts"
)

var (
	_ tts.Speaker     = (*Speaker)(nil)
	_ tts.Synthesizer = (*Synthesizer)(nil)
	_ tts.Player      = (*Player)(nil)
)

// Speaker records every Speak call and returns Err.
type Speaker struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from Speak.
	Err error

	// Spoken records the text of every call in order.
	Spoken []string
}

// Speak implements tts.Speaker.
func (s *Speaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spoken = append(s.Spoken, text)
	return s.Err
}

// Calls returns a copy of the spoken texts.
func (s *Speaker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Spoken...)
}

// Synthesizer returns WAV for every call.
type Synthesizer struct {
	mu   sync.Mutex
	WAV  []byte
	Err  error
	text []string
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = append(s.text, text)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.WAV, nil
}

// Texts returns the texts passed to Synthesize.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.text...)
}

// Player records every clip it is asked to play.
type Player struct {
	mu    sync.Mutex
	Err   error
	clips [][]byte
}

// PlayWAV implements tts.Player.
func (p *Player) PlayWAV(_ context.Context, wav []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clips = append(p.clips, wav)
	return p.Err
}

// Clips returns the played clips.
func (p *Player) Clips() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.clips...)
}
