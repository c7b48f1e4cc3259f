package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Float32ToInt16 converts samples to 16-bit PCM, clamping to [-1, 1] and
// scaling by [math.MaxInt16]. dst must be at least len(src) long; the filled
// prefix is returned.
func Float32ToInt16(dst []int16, src []Sample) []int16 {
	dst = dst[:len(src)]
	for i, s := range src {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		dst[i] = int16(s * math.MaxInt16)
	}
	return dst
}

// Int16ToFloat32 converts 16-bit PCM to samples in [-1, 1].
func Int16ToFloat32(src []int16) []Sample {
	out := make([]Sample, len(src))
	for i, s := range src {
		out[i] = Sample(s) / 32768.0
	}
	return out
}

// FirstChannel decodes interleaved little-endian int16 PCM and keeps only
// channel 0 of every frame. A trailing partial frame is ignored.
func FirstChannel(pcm []byte, channels int) []Sample {
	if channels < 1 {
		channels = 1
	}
	stride := channels * 2
	frames := len(pcm) / stride
	out := make([]Sample, frames)
	for i := range frames {
		v := int16(binary.LittleEndian.Uint16(pcm[i*stride:]))
		out[i] = Sample(v) / 32768.0
	}
	return out
}

// SamplesToPCM16 encodes samples as mono little-endian int16 PCM.
func SamplesToPCM16(samples []Sample) []byte {
	tmp := Float32ToInt16(make([]int16, len(samples)), samples)
	out := make([]byte, len(tmp)*2)
	for i, v := range tmp {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match (or either is invalid) the input is
// returned unchanged.
func Resample(samples []Sample, srcRate, dstRate int) []Sample {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]Sample, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := Sample(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Converter turns raw interleaved int16 PCM from a capture device into mono
// samples at a target rate. It logs a warning the first time it has to
// resample or drop a misaligned chunk.
// Create one per stream; not designed for shared use across goroutines.
type Converter struct {
	Source     Format
	TargetRate int

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert decodes pcm. Chunks whose length is not a whole number of frames
// are dropped and nil is returned.
func (c *Converter) Convert(pcm []byte) []Sample {
	channels := max(c.Source.Channels, 1)
	if len(pcm)%(2*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: partial frame in PCM data, dropping chunk",
				"bytes", len(pcm),
				"channels", channels,
			)
		})
		return nil
	}

	samples := FirstChannel(pcm, channels)
	if c.TargetRate == 0 || c.Source.SampleRate == c.TargetRate {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(c.Source.SampleRate, channels),
			"to", formatString(c.TargetRate, 1),
		)
	})
	return Resample(samples, c.Source.SampleRate, c.TargetRate)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
