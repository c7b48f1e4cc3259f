// Package energy provides a pure-Go vad.Classifier based on frame RMS energy
// with hysteresis.
//
// A frame counts as loud when its RMS exceeds the mode's onset threshold (or
// the lower release threshold while already in speech). Speech is reported
// once Onset consecutive loud frames have been seen and stays reported for
// Hangover quiet frames after the last loud one, which smooths over the short
// pauses between words.
//
// The noise floor adapts slowly to the quietest recent frames so the
// thresholds are relative to the room rather than absolute.
package energy

import (
	"fmt"
	"math"

	"github.com/MrWong99/grenouille/pkg/provider/vad"
)

// Compile-time interface assertion.
var _ vad.Classifier = (*Classifier)(nil)

// params are per-mode tuning values, on a normalized [0, 1] amplitude scale.
type params struct {
	onsetRMS   float64 // minimum RMS above the noise floor to start speech
	releaseRMS float64 // RMS above the noise floor that keeps speech going
	onset      int     // consecutive loud frames to enter speech
	hangover   int     // quiet frames tolerated before leaving speech
}

var modeParams = map[vad.Mode]params{
	vad.ModeQuality:        {onsetRMS: 0.006, releaseRMS: 0.003, onset: 1, hangover: 8},
	vad.ModeLowBitrate:     {onsetRMS: 0.010, releaseRMS: 0.005, onset: 1, hangover: 6},
	vad.ModeAggressive:     {onsetRMS: 0.015, releaseRMS: 0.008, onset: 2, hangover: 4},
	vad.ModeVeryAggressive: {onsetRMS: 0.020, releaseRMS: 0.012, onset: 2, hangover: 2},
}

const (
	// floorRise is how quickly the noise floor follows louder frames; it
	// drops immediately to quieter ones.
	floorRise    = 0.002
	initialFloor = 0.0
)

// Classifier is an RMS-energy voice activity classifier.
type Classifier struct {
	cfg      vad.Config
	frameLen int
	p        params

	floor    float64
	inSpeech bool
	loud     int
	quiet    int
}

// New returns a Classifier for cfg.
func New(cfg vad.Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		cfg:      cfg,
		frameLen: cfg.FrameLength(),
		p:        modeParams[cfg.Mode],
		floor:    initialFloor,
	}, nil
}

// Classify implements vad.Classifier.
func (c *Classifier) Classify(frame []int16) (bool, error) {
	if len(frame) != c.frameLen {
		return false, fmt.Errorf("energy: got %d samples, want %d: %w", len(frame), c.frameLen, vad.ErrFrameLength)
	}

	level := RMS(frame)
	c.trackFloor(level)
	above := level - c.floor

	threshold := c.p.onsetRMS
	if c.inSpeech {
		threshold = c.p.releaseRMS
	}

	if above >= threshold {
		c.loud++
		c.quiet = 0
		if !c.inSpeech && c.loud >= c.p.onset {
			c.inSpeech = true
		}
	} else {
		c.loud = 0
		if c.inSpeech {
			c.quiet++
			if c.quiet > c.p.hangover {
				c.inSpeech = false
				c.quiet = 0
			}
		}
	}
	return c.inSpeech, nil
}

// Reset clears smoothing state and the learned noise floor.
func (c *Classifier) Reset() {
	c.floor = initialFloor
	c.inSpeech = false
	c.loud, c.quiet = 0, 0
}

func (c *Classifier) trackFloor(level float64) {
	if level < c.floor {
		c.floor = level
		return
	}
	// Never learn speech as background.
	if !c.inSpeech {
		c.floor += (level - c.floor) * floorRise
	}
}

// RMS returns the root-mean-square amplitude of frame normalized to [0, 1].
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
