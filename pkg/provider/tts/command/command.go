// Package command provides a tts.Speaker that runs a local synthesizer binary
// (mimic, espeak-ng, piper wrappers, say) once per reply and waits for it to
// finish speaking.
//
// The text is appended as the final argument, so any program that speaks its
// last argument works:
//
//	s, err := command.New("mimic", command.WithArgs(command.MimicArgs...))
//	err = s.Speak(ctx, "the lights are on")
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/MrWong99/grenouille/pkg/provider/tts"
)

var _ tts.Speaker = (*Speaker)(nil)

// MimicArgs are the default arguments for the mimic synthesizer: the "kal"
// voice, slightly faster and pitched down.
var MimicArgs = []string{
	"-voice", "kal",
	"--setf", "duration_stretch=0.85",
	"--setf", "int_f0_target_mean=75",
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithArgs sets the arguments placed before the text.
func WithArgs(args ...string) Option {
	return func(s *Speaker) {
		s.args = append([]string(nil), args...)
	}
}

// WithQuote wraps the text in double quotes before passing it on, which some
// synthesizers use to disable their own markup parsing.
func WithQuote(on bool) Option {
	return func(s *Speaker) {
		s.quote = on
	}
}

// Speaker runs program per Speak call.
type Speaker struct {
	program string
	args    []string
	quote   bool
}

// New creates a Speaker for program. Without WithArgs, MimicArgs are used.
func New(program string, opts ...Option) (*Speaker, error) {
	if strings.TrimSpace(program) == "" {
		return nil, errors.New("command: program must not be empty")
	}
	s := &Speaker{program: program, args: MimicArgs}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Speak implements tts.Speaker.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.ErrEmptyText
	}
	if s.quote {
		text = `"` + text + `"`
	}
	args := append(append([]string(nil), s.args...), text)
	cmd := exec.CommandContext(ctx, s.program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("command: %s: %w: %s", s.program, err, msg)
		}
		return fmt.Errorf("command: %s: %w", s.program, err)
	}
	return nil
}
