// Package config provides the configuration schema, loader, provider registry
// and hot-reload watcher for grenouille.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Source selects where captured audio comes from.
type Source string

const (
	// SourcePCM reads raw little-endian int16 PCM from a file or stdin.
	SourcePCM Source = "pcm"

	// SourceWebsocket accepts PCM from a remote device over a websocket on
	// the HTTP server.
	SourceWebsocket Source = "websocket"
)

// IsValid reports whether s is a recognised capture source.
func (s Source) IsValid() bool {
	return s == SourcePCM || s == SourceWebsocket
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	VAD       VADConfig       `yaml:"vad"`
	Wakeword  WakewordConfig  `yaml:"wakeword"`
	Providers ProvidersConfig `yaml:"providers"`
	Assistant AssistantConfig `yaml:"assistant"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds logging and the optional HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address of the metrics, health and history
	// endpoints (e.g. ":9090"). Empty disables the server unless the
	// websocket capture source needs it.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// TraceSampleRatio is the fraction of utterance traces recorded, in
	// [0, 1]. Zero records every trace.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig describes the capture device and the rolling buffer.
type AudioConfig struct {
	Source Source `yaml:"source"`

	// Input is the PCM file path for [SourcePCM]; "-" reads stdin.
	Input string `yaml:"input"`

	// InputRate and Channels describe the captured stream. Audio is reduced
	// to its first channel and resampled to SampleRate.
	InputRate int `yaml:"input_rate"`
	Channels  int `yaml:"channels"`

	// SampleRate is the processing rate of the buffer and classifiers.
	SampleRate int `yaml:"sample_rate"`

	// BufferSeconds is the rolling window; longer utterances are truncated.
	BufferSeconds float64 `yaml:"buffer_seconds"`

	// Realtime paces a PCM file at its natural rate. Stdin is never paced.
	Realtime *bool `yaml:"realtime"`

	// OriginPatterns lists allowed websocket origins.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// SegmenterConfig holds the utterance state machine timing and poll loop
// settings. The three durations are applied live on reload.
type SegmenterConfig struct {
	EndSilence       time.Duration `yaml:"end_silence"`
	MinUtterance     time.Duration `yaml:"min_utterance"`
	DetectionLatency time.Duration `yaml:"detection_latency"`

	PollInterval          time.Duration `yaml:"poll_interval"`
	MaxClassifierFailures int           `yaml:"max_classifier_failures"`
}

// VADConfig selects the voice activity classifier.
type VADConfig struct {
	// Name selects the registered classifier. Default "energy".
	Name string `yaml:"name"`

	// Mode is quality, low_bitrate, aggressive or very_aggressive (default).
	Mode string `yaml:"mode"`

	// FrameMs is the classifier frame length: 10, 20 or 30.
	FrameMs int `yaml:"frame_ms"`
}

// WakewordConfig configures the template wake-word detector.
type WakewordConfig struct {
	Name         string   `yaml:"name"`
	Templates    []string `yaml:"templates"`
	Threshold    float64  `yaml:"threshold"`
	AvgThreshold float64  `yaml:"avg_threshold"`
}

// ProvidersConfig declares the collaborator implementations. Each stage has a
// primary and optional fallbacks tried in order.
type ProvidersConfig struct {
	STT        ProviderEntry `yaml:"stt"`
	LLM        ProviderEntry `yaml:"llm"`
	TTS        ProviderEntry `yaml:"tts"`
	Embeddings ProviderEntry `yaml:"embeddings"`

	// Resilience tunes the circuit breakers guarding each provider.
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ProviderEntry is the configuration block shared by all provider kinds. Name
// selects the constructor in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ResilienceConfig tunes the circuit breaker of every provider.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// AssistantConfig configures addressing, the chat session and cues.
type AssistantConfig struct {
	// Names the assistant answers to. Default computer, peter.
	Names []string `yaml:"names"`

	// PrefixedNames may follow any one word ("hey peter").
	PrefixedNames []string `yaml:"prefixed_names"`

	// ExactNames disables phonetic and fuzzy name matching.
	ExactNames bool `yaml:"exact_names"`

	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`

	// MaxContextTokens bounds the history sent per completion. Zero derives
	// it from the model; negative disables trimming.
	MaxContextTokens int `yaml:"max_context_tokens"`

	Cues CuesConfig `yaml:"cues"`

	// Player is the command that plays WAV files and clips, e.g. [aplay, -q].
	Player []string `yaml:"player"`
}

// CuesConfig lists the acknowledgement sound files. Empty paths are silent.
type CuesConfig struct {
	On      string `yaml:"on"`
	Done    string `yaml:"done"`
	Unclear string `yaml:"unclear"`
}

// HistoryConfig configures the turn log.
type HistoryConfig struct {
	// PostgresDSN enables the PostgreSQL store; otherwise turns are kept in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Capacity bounds the in-memory store.
	Capacity int `yaml:"capacity"`
}
