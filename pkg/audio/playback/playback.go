// Package playback plays WAV audio through an external player command such as
// aplay, paplay or afplay.
//
// The player receives either a file path (PlayFile) or the WAV bytes on stdin
// (PlayWAV). Both calls block until the command exits or ctx is cancelled.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultCommand is the ALSA player used when no command is configured.
var DefaultCommand = []string{"aplay", "-q"}

// Player runs a player command per clip. The zero value is not usable; create
// with New.
type Player struct {
	command []string
	stdin   string
}

// Option configures a Player.
type Option func(*Player)

// WithStdinArg sets the argument that tells the player to read from stdin.
// Defaults to "-" (aplay, sox). Set to "" for players that read stdin without
// an argument.
func WithStdinArg(arg string) Option {
	return func(p *Player) {
		p.stdin = arg
	}
}

// New returns a Player that runs command. An empty command selects
// DefaultCommand.
func New(command []string, opts ...Option) (*Player, error) {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("playback: empty player command")
	}
	p := &Player{
		command: append([]string(nil), command...),
		stdin:   "-",
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Command returns a copy of the configured command line.
func (p *Player) Command() []string {
	return append([]string(nil), p.command...)
}

// PlayFile plays the WAV file at path.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	return p.run(ctx, nil, path)
}

// PlayWAV plays an in-memory WAV clip by piping it to the player's stdin.
func (p *Player) PlayWAV(ctx context.Context, wav []byte) error {
	if len(wav) == 0 {
		return errors.New("playback: empty clip")
	}
	var args []string
	if p.stdin != "" {
		args = append(args, p.stdin)
	}
	return p.run(ctx, wav, args...)
}

func (p *Player) run(ctx context.Context, stdin []byte, extra ...string) error {
	args := append(p.command[1:len(p.command):len(p.command)], extra...)
	cmd := exec.CommandContext(ctx, p.command[0], args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("playback: %s: %w: %s", p.command[0], err, msg)
		}
		return fmt.Errorf("playback: %s: %w", p.command[0], err)
	}
	return nil
}
