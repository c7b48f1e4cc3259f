// Package wakeword defines the Detector interface for wake-word spotting
// backends.
//
// A detector is configured once at construction (reference recordings,
// thresholds) and then fed one frame at a time. The frame length is the
// detector's own; callers ask for it with [Detector.FrameLength] and hand over
// the most recent that many samples on every poll tick, so successive frames
// overlap.
package wakeword

import "fmt"

// Defaults matching a single "computer" wake word.
const (
	DefaultName         = "computer"
	DefaultThreshold    = 0.5
	DefaultAvgThreshold = 0.15
	DefaultFrameLength  = 480
)

// Detection reports a spotted wake word.
type Detection struct {
	// Name is the wake word that matched.
	Name string

	// Confidence is the match score in [0, 1].
	Confidence float64
}

// String returns a compact representation for logs.
func (d Detection) String() string {
	return fmt.Sprintf("%s(%.2f)", d.Name, d.Confidence)
}

// Detector spots a wake word in a stream of overlapping frames.
type Detector interface {
	// Detect consumes the latest frame and returns a detection, or nil.
	// frame must have exactly FrameLength samples.
	Detect(frame []float32) (*Detection, error)

	// FrameLength returns the number of samples Detect expects.
	FrameLength() int
}

// Config holds construction parameters shared by detector backends.
type Config struct {
	// Name is reported in every [Detection].
	Name string

	// Templates are paths to reference recordings of the wake word.
	Templates []string

	// SampleRate of the frames passed to Detect.
	SampleRate int

	// Threshold is the minimum score of the best-matching template.
	Threshold float64

	// AvgThreshold is the minimum score averaged over all templates.
	AvgThreshold float64
}

// WithDefaults returns c with zero fields replaced by package defaults.
func (c Config) WithDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.AvgThreshold == 0 {
		c.AvgThreshold = DefaultAvgThreshold
	}
	return c
}
