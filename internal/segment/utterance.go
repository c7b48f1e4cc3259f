package segment

import (
	"time"

	"github.com/MrWong99/grenouille/pkg/audio"
)

// Utterance is the audio handed off at finalization.
type Utterance struct {
	// Start and End index the utterance within the buffer contents at
	// finalization; End equals the buffer length.
	Start, End int

	// Samples are the utterance samples, oldest first.
	Samples []audio.Sample

	// SampleRate of Samples.
	SampleRate int

	// SpokenFor is the estimated utterance duration.
	SpokenFor time.Duration

	// Requested is the sample count SpokenFor corresponds to. When it exceeds
	// the buffered audio, Truncated is set and the oldest part is missing.
	Requested int
	Truncated bool
}

// Duration returns the length of the captured audio.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// SampleCount returns ceil(d × rate) using integer arithmetic.
func SampleCount(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	num := int64(d) * int64(rate)
	return int((num + int64(time.Second) - 1) / int64(time.Second))
}

// Cut removes the utterance of duration spokenFor from rb: the most recent
// SampleCount(spokenFor, rate) samples, clamped to the buffer length. The
// buffer is cleared.
func Cut(rb *audio.RingBuffer, spokenFor time.Duration, rate int) (Utterance, error) {
	want := SampleCount(spokenFor, rate)
	samples, held := rb.CutTail(want)
	if held == 0 {
		return Utterance{}, &InvariantError{Op: "finalize", Err: audio.ErrBufferEmpty}
	}
	return Utterance{
		Start:      held - len(samples),
		End:        held,
		Samples:    samples,
		SampleRate: rate,
		SpokenFor:  spokenFor,
		Requested:  want,
		Truncated:  want > held,
	}, nil
}
