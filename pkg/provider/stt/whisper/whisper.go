// Package whisper provides whisper.cpp-backed transcribers.
//
// Two flavours are available:
//
//   - [HTTPTranscriber] posts each utterance as a WAV upload to a running
//     whisper-server binary (POST /inference) and reads back its JSON result.
//   - [NativeTranscriber] runs the model in-process through the whisper.cpp
//     CGO bindings.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	segs, err := t.Transcribe(ctx, samples, 16000)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/provider/stt"
)

const (
	// whisperSampleRate is the only input rate whisper models accept.
	whisperSampleRate = 16000

	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second
)

// Compile-time assertion that HTTPTranscriber implements stt.Transcriber.
var _ stt.Transcriber = (*HTTPTranscriber)(nil)

// Option is a functional option for configuring an HTTPTranscriber.
type Option func(*HTTPTranscriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(p *HTTPTranscriber) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *HTTPTranscriber) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *HTTPTranscriber) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPTranscriber) {
		p.httpClient = c
	}
}

// HTTPTranscriber implements stt.Transcriber backed by a whisper.cpp HTTP
// server.
type HTTPTranscriber struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates an HTTPTranscriber for the server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*HTTPTranscriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &HTTPTranscriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Transcriber.
func (p *HTTPTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]stt.Segment, error) {
	if len(samples) == 0 {
		return nil, stt.ErrNoAudio
	}
	samples = audio.Resample(samples, sampleRate, whisperSampleRate)
	wav := audio.EncodeWAV(samples, whisperSampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
		"temperature":     "0",
		"language":        p.language,
		"model":           p.model,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, nil
	}

	dur := time.Duration(len(samples)) * time.Second / whisperSampleRate
	return []stt.Segment{{Text: result.Text, End: dur}}, nil
}
