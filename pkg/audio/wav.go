package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ErrNotWAV is returned when input does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// EncodeWAV wraps samples as a mono 16-bit PCM RIFF/WAV file.
func EncodeWAV(samples []Sample, sampleRate int) []byte {
	return EncodePCM16WAV(SamplesToPCM16(samples), sampleRate, 1)
}

// EncodePCM16WAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodePCM16WAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// WAV is a decoded WAV file reduced to its first channel.
type WAV struct {
	Format  Format // Channels reports the file's channel count
	Samples []Sample
}

// Duration returns the playback length in seconds.
func (w WAV) Duration() float64 {
	if w.Format.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.Format.SampleRate)
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (WAV, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WAV{}, fmt.Errorf("audio: read wav: %w", err)
	}
	w, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return WAV{}, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	return w, nil
}

// DecodeWAV reads a 16-bit PCM or 32-bit float WAV stream. Only the first
// channel is kept.
func DecodeWAV(r io.Reader) (WAV, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return WAV{}, ErrNotWAV
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return WAV{}, ErrNotWAV
	}

	var (
		format   uint16
		channels int
		rate     int
		bits     int
		haveFmt  bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return WAV{}, fmt.Errorf("audio: wav: missing data chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAV{}, fmt.Errorf("audio: wav: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return WAV{}, fmt.Errorf("audio: wav: fmt chunk too short (%d bytes)", len(body))
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAV{}, errors.New("audio: wav: data chunk before fmt chunk")
			}
			body := make([]byte, size)
			n, err := io.ReadFull(r, body)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return WAV{}, fmt.Errorf("audio: wav: read data chunk: %w", err)
			}
			samples, err := decodeWAVData(body[:n], format, bits, channels)
			if err != nil {
				return WAV{}, err
			}
			return WAV{Format: Format{SampleRate: rate, Channels: channels}, Samples: samples}, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return WAV{}, fmt.Errorf("audio: wav: skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 && id == "fmt " {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return WAV{}, fmt.Errorf("audio: wav: pad byte: %w", err)
			}
		}
	}
}

func decodeWAVData(data []byte, format uint16, bits, channels int) ([]Sample, error) {
	if channels < 1 {
		return nil, fmt.Errorf("audio: wav: invalid channel count %d", channels)
	}
	switch {
	case format == wavFormatPCM && bits == 16:
		return FirstChannel(data, channels), nil
	case format == wavFormatFloat && bits == 32:
		stride := 4 * channels
		out := make([]Sample, len(data)/stride)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*stride:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("audio: wav: unsupported encoding (format %d, %d bits)", format, bits)
	}
}
