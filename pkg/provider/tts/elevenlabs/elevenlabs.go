// Package elevenlabs provides a tts.Synthesizer backed by the ElevenLabs
// streaming text-to-speech websocket API.
//
// Each Synthesize call opens one stream-input session, sends the whole reply,
// collects the base64 PCM frames until the server marks the stream final and
// returns them as a single WAV clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultEndpoint = "wss://api.elevenlabs.io"
	defaultModel    = "eleven_flash_v2_5"
	defaultRate     = 16000
)

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the ElevenLabs model id.
func WithModel(model string) Option {
	return func(s *Synthesizer) {
		s.model = model
	}
}

// WithSampleRate selects the pcm_<rate> output format. ElevenLabs supports
// 16000, 22050, 24000 and 44100.
func WithSampleRate(rate int) Option {
	return func(s *Synthesizer) {
		s.rate = rate
	}
}

// WithEndpoint overrides the websocket base URL.
func WithEndpoint(endpoint string) Option {
	return func(s *Synthesizer) {
		s.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	apiKey   string
	voiceID  string
	model    string
	rate     int
	endpoint string
}

// New creates a Synthesizer speaking with voiceID.
func New(apiKey, voiceID string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	s := &Synthesizer{
		apiKey:   apiKey,
		voiceID:  voiceID,
		model:    defaultModel,
		rate:     defaultRate,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// textMessage is one client frame. The first frame (beginning of input)
// carries the key and settings; an empty Text closes the input.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

func (s *Synthesizer) streamURL() string {
	q := url.Values{}
	q.Set("model_id", s.model)
	q.Set("output_format", "pcm_"+strconv.Itoa(s.rate))
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", s.endpoint, url.PathEscape(s.voiceID), q.Encode())
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	conn, _, err := websocket.Dial(ctx, s.streamURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(4 << 20)

	frames := []textMessage{
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}, XiAPIKey: s.apiKey},
		{Text: text + " "},
		{Text: ""},
	}
	for _, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: marshal frame: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return nil, fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(pcm) > 0 {
				break
			}
			return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("elevenlabs: decode frame: %w", err)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		} else if resp.Message != "" && !resp.IsFinal {
			return nil, fmt.Errorf("elevenlabs: server: %s", resp.Message)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if len(pcm) == 0 {
		return nil, errors.New("elevenlabs: no audio returned")
	}
	return audio.EncodePCM16WAV(pcm, s.rate, 1), nil
}
