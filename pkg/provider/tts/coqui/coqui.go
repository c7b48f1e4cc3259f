// Package coqui provides a tts.Synthesizer backed by a locally-running Coqui
// TTS server.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is a GET /api/tts with URL query
//     parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is a
//     POST /tts_to_audio/ with a JSON body and requires a speaker.
//
// Both return one WAV clip per reply. Combine with a player through
// tts.NewSpeaker:
//
//	synth, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	speaker := tts.NewSpeaker(synth, player)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	xttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"

	// maxClipBytes bounds the WAV body read from the server (~10 min mono 22 kHz).
	maxClipBytes = 32 << 20
)

// APIMode selects which Coqui server API the synthesizer targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the language code sent to the TTS server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) {
		s.language = lang
	}
}

// WithSpeaker selects the speaker: a speaker id for multi-speaker standard
// models or the speaker_wav reference for XTTS.
func WithSpeaker(id string) Option {
	return func(s *Synthesizer) {
		s.speaker = id
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		s.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(s *Synthesizer) {
		s.apiMode = mode
	}
}

// WithOutputSampleRate re-encodes the returned clip at rate. When 0 (default)
// the server's WAV is passed through untouched.
func WithOutputSampleRate(rate int) Option {
	return func(s *Synthesizer) {
		s.outputRate = rate
	}
}

// Synthesizer implements tts.Synthesizer against a Coqui server.
type Synthesizer struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New creates a Synthesizer for the server at serverURL
// (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	s := &Synthesizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	switch s.apiMode {
	case APIModeStandard:
	case APIModeXTTS:
		if s.speaker == "" {
			return nil, errors.New("coqui: a speaker is required in XTTS mode")
		}
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", s.apiMode)
	}
	return s, nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/.
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	req, err := s.newRequest(ctx, text)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	clip, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	wav, err := audio.DecodeWAV(bytes.NewReader(clip))
	if err != nil {
		return nil, fmt.Errorf("coqui: decode WAV response: %w", err)
	}
	if s.outputRate > 0 && wav.Format.SampleRate != s.outputRate {
		return audio.EncodeWAV(audio.Resample(wav.Samples, wav.Format.SampleRate, s.outputRate), s.outputRate), nil
	}
	return clip, nil
}

func (s *Synthesizer) newRequest(ctx context.Context, text string) (*http.Request, error) {
	if s.apiMode == APIModeXTTS {
		body, err := json.Marshal(xttsRequest{
			Text:       text,
			SpeakerWav: s.speaker,
			Language:   s.language,
		})
		if err != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+xttsEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("coqui: create tts request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	params := url.Values{}
	params.Set("text", text)
	if s.speaker != "" {
		params.Set("speaker_id", s.speaker)
	}
	if s.language != "" {
		params.Set("language_id", s.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}
