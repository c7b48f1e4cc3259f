package audio

// Sample is a single mono PCM sample in the nominal range [-1.0, 1.0].
type Sample = float32

// DefaultSampleRate is the rate every classifier in the pipeline expects.
const DefaultSampleRate = 16000

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SamplesFor returns how many samples at rate cover ms milliseconds.
func SamplesFor(rate, ms int) int {
	return rate * ms / 1000
}
