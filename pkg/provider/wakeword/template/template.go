// Package template provides a pure-Go wakeword.Detector that matches the
// incoming audio against a handful of reference recordings of the wake word.
//
// Every frame is reduced to a vector of mel-spaced log band energies. The
// detector keeps the most recent vectors in a sliding window and, every few
// frames, aligns the tail of that window against each reference with dynamic
// time warping. A detection fires when the best reference scores at least
// Threshold and the mean score over all references reaches AvgThreshold.
//
// Typical usage:
//
//	d, err := template.New(wakeword.Config{
//	    Name:      "computer",
//	    Templates: []string{"0.wav", "1.wav", "2.wav"},
//	})
//	det, err := d.Detect(latest480Samples)
package template

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
)

// Compile-time interface assertion.
var _ wakeword.Detector = (*Detector)(nil)

const (
	// evalEvery is how many frames pass between alignment passes.
	evalEvery = 3

	// minLevel is the RMS below which the window is treated as silence and
	// not aligned at all.
	minLevel = 0.005
)

// Detector is a DTW template matcher.
type Detector struct {
	cfg       wakeword.Config
	frameLen  int
	feat      *featurizer
	templates [][][]float64
	maxLen    int
	minLen    int

	window [][]float64
	levels []float64
	frames int
	hold   int
}

// New loads the configured template recordings and returns a Detector.
func New(cfg wakeword.Config) (*Detector, error) {
	cfg = cfg.WithDefaults()
	if len(cfg.Templates) == 0 {
		return nil, errors.New("template: at least one template recording is required")
	}
	clips := make([][]float32, 0, len(cfg.Templates))
	for _, path := range cfg.Templates {
		w, err := audio.ReadWAVFile(path)
		if err != nil {
			return nil, fmt.Errorf("template: %w", err)
		}
		clips = append(clips, audio.Resample(w.Samples, w.Format.SampleRate, cfg.SampleRate))
	}
	return NewFromSamples(cfg, clips...)
}

// NewFromSamples builds a Detector from in-memory recordings at cfg.SampleRate.
func NewFromSamples(cfg wakeword.Config, clips ...[]float32) (*Detector, error) {
	cfg = cfg.WithDefaults()
	frameLen := cfg.SampleRate * 30 / 1000
	hop := cfg.SampleRate / 100

	d := &Detector{
		cfg:      cfg,
		frameLen: frameLen,
		feat:     newFeaturizer(frameLen, cfg.SampleRate),
	}
	for i, clip := range clips {
		vecs := trimSilence(d.feat.sequence(clip, frameLen, hop))
		if len(vecs) < 3 {
			return nil, fmt.Errorf("template: recording %d is too short or silent", i)
		}
		d.templates = append(d.templates, vecs)
		d.maxLen = max(d.maxLen, len(vecs))
		if d.minLen == 0 || len(vecs) < d.minLen {
			d.minLen = len(vecs)
		}
	}
	if len(d.templates) == 0 {
		return nil, errors.New("template: at least one template recording is required")
	}
	slog.Debug("wake word templates loaded",
		"name", cfg.Name,
		"templates", len(d.templates),
		"min_frames", d.minLen,
		"max_frames", d.maxLen,
	)
	return d, nil
}

// FrameLength implements wakeword.Detector. It is 30 ms of audio, 480
// samples at 16 kHz.
func (d *Detector) FrameLength() int { return d.frameLen }

// Detect implements wakeword.Detector.
func (d *Detector) Detect(frame []float32) (*wakeword.Detection, error) {
	if len(frame) != d.frameLen {
		return nil, fmt.Errorf("template: got %d samples, want %d", len(frame), d.frameLen)
	}

	vec, level := d.feat.vector(frame)
	d.window = append(d.window, vec)
	d.levels = append(d.levels, level)
	if over := len(d.window) - d.maxLen; over > 0 {
		d.window = d.window[over:]
		d.levels = d.levels[over:]
	}

	if d.hold > 0 {
		d.hold--
		return nil, nil
	}
	d.frames++
	if d.frames%evalEvery != 0 || len(d.window) < d.minLen || !d.loud() {
		return nil, nil
	}

	var best, sum float64
	for _, t := range d.templates {
		var s float64
		if len(d.window) >= len(t) {
			s = dtwScore(d.window[len(d.window)-len(t):], t)
		}
		best = max(best, s)
		sum += s
	}
	avg := sum / float64(len(d.templates))
	if best < d.cfg.Threshold || avg < d.cfg.AvgThreshold {
		return nil, nil
	}

	// Do not fire again on the same utterance.
	d.reset()
	d.hold = d.maxLen
	return &wakeword.Detection{Name: d.cfg.Name, Confidence: best}, nil
}

// Reset drops all buffered audio features.
func (d *Detector) Reset() {
	d.reset()
	d.hold = 0
}

func (d *Detector) reset() {
	d.window = d.window[:0]
	d.levels = d.levels[:0]
	d.frames = 0
}

func (d *Detector) loud() bool {
	for _, l := range d.levels {
		if l >= minLevel {
			return true
		}
	}
	return false
}
