package tts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/grenouille/pkg/provider/tts"
	"github.com/MrWong99/grenouille/pkg/provider/tts/mock"
)

func TestSynthSpeaker_PlaysSynthesizedClip(t *testing.T) {
	t.Parallel()

	synth := &mock.Synthesizer{WAV: []byte("RIFF")}
	player := &mock.Player{}
	s := tts.NewSpeaker(synth, player)

	if err := s.Speak(context.Background(), "hello there"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := synth.Texts(); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("synthesized %v", got)
	}
	if got := player.Clips(); len(got) != 1 || string(got[0]) != "RIFF" {
		t.Errorf("played %q", got)
	}
}

func TestSynthSpeaker_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name   string
		synth  *mock.Synthesizer
		player *mock.Player
		text   string
		want   error
	}{
		{"empty text", &mock.Synthesizer{}, &mock.Player{}, "  ", tts.ErrEmptyText},
		{"synth fails", &mock.Synthesizer{Err: boom}, &mock.Player{}, "hi", boom},
		{"player fails", &mock.Synthesizer{WAV: []byte("x")}, &mock.Player{Err: boom}, "hi", boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tts.NewSpeaker(tt.synth, tt.player).Speak(context.Background(), tt.text)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
