// Package vad defines the Classifier interface for Voice Activity Detection
// backends.
//
// A classifier answers one question per fixed-size frame of 16-bit PCM: is
// somebody speaking? Frame length is fixed at construction from the sample
// rate and frame duration (10 ms at 16 kHz is 160 samples); frames of any other
// length are rejected with [ErrFrameLength].
//
// Classification is synchronous: Classify returns immediately, which makes it
// suitable for the poll loop that gates utterance segmentation. A Classifier
// may keep smoothing state between frames and is not safe for concurrent use
// unless the implementation says so.
package vad

import (
	"errors"
	"fmt"
)

// ErrFrameLength is returned when a frame does not have the configured length.
var ErrFrameLength = errors.New("vad: wrong frame length")

// Mode selects how eagerly a classifier rejects non-speech, mirroring the four
// WebRTC VAD operating modes. Higher modes report speech less often.
type Mode int

const (
	ModeQuality Mode = iota
	ModeLowBitrate
	ModeAggressive
	ModeVeryAggressive
)

// String returns the human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeQuality:
		return "quality"
	case ModeLowBitrate:
		return "low_bitrate"
	case ModeAggressive:
		return "aggressive"
	case ModeVeryAggressive:
		return "very_aggressive"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "quality":
		return ModeQuality, nil
	case "low_bitrate":
		return ModeLowBitrate, nil
	case "aggressive":
		return ModeAggressive, nil
	case "", "very_aggressive":
		return ModeVeryAggressive, nil
	default:
		return 0, fmt.Errorf("vad: unknown mode %q", s)
	}
}

// Config holds the parameters for a classifier.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Supported: 8000, 16000,
	// 32000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each frame in milliseconds: 10, 20 or 30.
	FrameSizeMs int

	// Mode is the operating aggressiveness.
	Mode Mode
}

// FrameLength returns the number of samples per frame.
func (c Config) FrameLength() int {
	return c.SampleRate * c.FrameSizeMs / 1000
}

// Validate reports whether c describes a supported frame format.
func (c Config) Validate() error {
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("vad: unsupported sample rate %d", c.SampleRate)
	}
	switch c.FrameSizeMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("vad: unsupported frame size %d ms", c.FrameSizeMs)
	}
	if c.Mode < ModeQuality || c.Mode > ModeVeryAggressive {
		return fmt.Errorf("vad: unsupported mode %d", c.Mode)
	}
	return nil
}

// Classifier decides whether a single frame contains voice.
type Classifier interface {
	// Classify returns true if frame contains speech. Returns an error wrapping
	// [ErrFrameLength] if len(frame) is not the configured frame length, or any
	// backend failure.
	Classify(frame []int16) (bool, error)
}
