// Package cue plays the short acknowledgement sounds that frame an utterance:
// "on" when the wake word fires and capture is handed to transcription, "done"
// when transcription finished, and "unclear" when no usable answer came back.
package cue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Cue identifies an acknowledgement sound.
type Cue int

const (
	On Cue = iota
	Done
	Unclear
)

// String returns the cue name.
func (c Cue) String() string {
	switch c {
	case On:
		return "on"
	case Done:
		return "done"
	case Unclear:
		return "unclear"
	default:
		return fmt.Sprintf("cue(%d)", int(c))
	}
}

// FilePlayer plays a WAV file by path.
type FilePlayer interface {
	PlayFile(ctx context.Context, path string) error
}

// Files maps cues to WAV paths. Empty paths are silent.
type Files struct {
	On      string
	Done    string
	Unclear string
}

// DefaultFiles are the paths used when none are configured.
var DefaultFiles = Files{On: "./on.wav", Done: "./done.wav", Unclear: "./unclear.wav"}

func (f Files) path(c Cue) string {
	switch c {
	case On:
		return f.On
	case Done:
		return f.Done
	case Unclear:
		return f.Unclear
	}
	return ""
}

// Player plays cues. Cues are best effort: a missing file or a failing player
// is logged and never surfaces as an error.
type Player struct {
	files  Files
	player FilePlayer
}

// NewPlayer creates a Player. Configured paths that do not exist are logged
// once here and then skipped.
func NewPlayer(files Files, player FilePlayer) *Player {
	for _, c := range []Cue{On, Done, Unclear} {
		p := files.path(c)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			slog.Warn("cue file unavailable, cue disabled", "cue", c.String(), "path", p, "err", err)
			switch c {
			case On:
				files.On = ""
			case Done:
				files.Done = ""
			case Unclear:
				files.Unclear = ""
			}
		}
	}
	return &Player{files: files, player: player}
}

// Play plays c and blocks until it finished.
func (p *Player) Play(ctx context.Context, c Cue) {
	path := p.files.path(c)
	if path == "" || p.player == nil {
		return
	}
	if err := p.player.PlayFile(ctx, path); err != nil {
		slog.Warn("cue playback failed", "cue", c.String(), "err", err)
	}
}
