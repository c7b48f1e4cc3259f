// Package segment decides which stretch of buffered microphone audio forms a
// user's utterance.
//
// A wake word moves the Machine from Silent to Speaking; voice activity keeps
// it there; a silence that lasts longer than Timing.EndSilence (and an
// utterance older than Timing.MinUtterance) finalizes it. On finalization the
// caller cuts the utterance out of the ring buffer with Cut.
//
// The Machine is not safe for concurrent use; it is owned by the poll loop.
package segment

import (
	"errors"
	"fmt"
	"time"
)

// State is one of Silent, Speaking or PendingEnd.
type State interface {
	state()
	String() string
}

// Silent waits for the wake word.
type Silent struct{}

// Speaking records while the voice classifier reports speech.
type Speaking struct{}

// PendingEnd is a silence inside an utterance that may end it.
type PendingEnd struct {
	// SilenceStarted is when the classifier first reported no voice.
	SilenceStarted time.Time
}

func (Silent) state()     {}
func (Speaking) state()   {}
func (PendingEnd) state() {}

func (Silent) String() string     { return "silent" }
func (Speaking) String() string   { return "speaking" }
func (PendingEnd) String() string { return "pending_end" }

// Timing holds the segmentation thresholds.
type Timing struct {
	// EndSilence is how long silence must last (strictly longer) to end an
	// utterance.
	EndSilence time.Duration

	// MinUtterance is the minimum time since the wake-word detection
	// (strictly longer) before an utterance may end.
	MinUtterance time.Duration

	// DetectionLatency is how far the utterance start lies before the
	// detection, covering the wake word itself.
	DetectionLatency time.Duration
}

// Defaults.
const (
	DefaultEndSilence       = 800 * time.Millisecond
	DefaultMinUtterance     = 1500 * time.Millisecond
	DefaultDetectionLatency = 2000 * time.Millisecond
)

// DefaultTiming returns the default thresholds.
func DefaultTiming() Timing {
	return Timing{
		EndSilence:       DefaultEndSilence,
		MinUtterance:     DefaultMinUtterance,
		DetectionLatency: DefaultDetectionLatency,
	}
}

// Validate reports negative or zero thresholds.
func (t Timing) Validate() error {
	var errs []error
	if t.EndSilence <= 0 {
		errs = append(errs, fmt.Errorf("segment: end silence must be positive, got %v", t.EndSilence))
	}
	if t.MinUtterance < 0 {
		errs = append(errs, fmt.Errorf("segment: min utterance must not be negative, got %v", t.MinUtterance))
	}
	if t.DetectionLatency < 0 {
		errs = append(errs, fmt.Errorf("segment: detection latency must not be negative, got %v", t.DetectionLatency))
	}
	return errors.Join(errs...)
}

// since returns now - t, or zero when t is after now.
func since(now, t time.Time) time.Duration {
	if d := now.Sub(t); d > 0 {
		return d
	}
	return 0
}
