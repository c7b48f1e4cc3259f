package segment_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/grenouille/internal/segment"
	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/provider/vad"
	vadmock "github.com/MrWong99/grenouille/pkg/provider/vad/mock"
	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
	wakemock "github.com/MrWong99/grenouille/pkg/provider/wakeword/mock"
)

func TestVoiceGate_ConvertsToClampedPCM(t *testing.T) {
	t.Parallel()

	var seen []int16
	c := &vadmock.Classifier{Fn: func(frame []int16) bool {
		seen = append([]int16(nil), frame...)
		return true
	}}
	g := segment.NewVoiceGate(c, 160)

	frame := make([]audio.Sample, 160)
	frame[0], frame[1], frame[2] = 1.5, -2, 0.5
	voice, err := g.IsVoice(frame)
	if err != nil {
		t.Fatalf("IsVoice: %v", err)
	}
	if !voice {
		t.Error("IsVoice = false, want true")
	}
	if seen[0] != math.MaxInt16 || seen[1] != -math.MaxInt16 || seen[2] != math.MaxInt16/2 {
		t.Errorf("pcm = %v", seen[:3])
	}
	if g.FrameLen() != 160 {
		t.Errorf("FrameLen = %d, want 160", g.FrameLen())
	}
}

func TestVoiceGate_WrapsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	g := segment.NewVoiceGate(&vadmock.Classifier{Err: boom}, 160)
	_, err := g.IsVoice(make([]audio.Sample, 160))
	var ce *segment.ClassifierError
	if !errors.As(err, &ce) || ce.Gate != "vad" || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want vad ClassifierError wrapping boom", err)
	}
	if !segment.IsClassifierError(err) {
		t.Error("IsClassifierError = false")
	}
}

func TestVoiceGate_FrameLength(t *testing.T) {
	t.Parallel()

	c := &vadmock.Classifier{}
	g := segment.NewVoiceGate(c, 160)
	_, err := g.IsVoice(make([]audio.Sample, 159))
	if !errors.Is(err, vad.ErrFrameLength) {
		t.Fatalf("err = %v, want ErrFrameLength", err)
	}
	if c.Calls() != 0 {
		t.Error("classifier must not be called with a short frame")
	}
}

func TestWakeGate(t *testing.T) {
	t.Parallel()

	det := &wakeword.Detection{Name: "computer", Confidence: 0.7}
	d := &wakemock.Detector{Result: det, FireOnCall: 2}
	g := segment.NewWakeGate(d)
	if g.FrameLen() != 480 {
		t.Errorf("FrameLen = %d, want 480", g.FrameLen())
	}
	frame := make([]audio.Sample, 480)
	if got, _ := g.Detect(frame); got != nil {
		t.Errorf("first call = %v, want nil", got)
	}
	if got, _ := g.Detect(frame); got != det {
		t.Errorf("second call = %v, want %v", got, det)
	}

	d.Err = errors.New("model gone")
	_, err := g.Detect(frame)
	var ce *segment.ClassifierError
	if !errors.As(err, &ce) || ce.Gate != "wakeword" {
		t.Fatalf("err = %v, want wakeword ClassifierError", err)
	}
}
