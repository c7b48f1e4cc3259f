package segment

import (
	"errors"
	"fmt"

	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/provider/vad"
	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
)

// VoiceGate converts float frames to 16-bit PCM and asks a vad.Classifier
// whether they contain speech.
type VoiceGate struct {
	classifier vad.Classifier
	pcm        []int16
}

// NewVoiceGate creates a gate for frames of frameLen samples.
func NewVoiceGate(c vad.Classifier, frameLen int) *VoiceGate {
	return &VoiceGate{classifier: c, pcm: make([]int16, frameLen)}
}

// FrameLen is the number of samples IsVoice expects.
func (g *VoiceGate) FrameLen() int { return len(g.pcm) }

// IsVoice classifies frame. Errors are *ClassifierError.
func (g *VoiceGate) IsVoice(frame []audio.Sample) (bool, error) {
	if len(frame) != len(g.pcm) {
		return false, &ClassifierError{Gate: "vad", Err: fmt.Errorf("%w: got %d samples, want %d", vad.ErrFrameLength, len(frame), len(g.pcm))}
	}
	voice, err := g.classifier.Classify(audio.Float32ToInt16(g.pcm, frame))
	if err != nil {
		return false, &ClassifierError{Gate: "vad", Err: err}
	}
	return voice, nil
}

// WakeGate feeds frames to a wakeword.Detector.
type WakeGate struct {
	detector wakeword.Detector
}

// NewWakeGate wraps d.
func NewWakeGate(d wakeword.Detector) *WakeGate {
	return &WakeGate{detector: d}
}

// FrameLen is the detector's frame length.
func (g *WakeGate) FrameLen() int { return g.detector.FrameLength() }

// Detect returns a detection or nil. Errors are *ClassifierError.
func (g *WakeGate) Detect(frame []audio.Sample) (*wakeword.Detection, error) {
	det, err := g.detector.Detect(frame)
	if err != nil {
		return nil, &ClassifierError{Gate: "wakeword", Err: err}
	}
	return det, nil
}

// IsClassifierError reports whether err is a *ClassifierError.
func IsClassifierError(err error) bool {
	var ce *ClassifierError
	return errors.As(err, &ce)
}
