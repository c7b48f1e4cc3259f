package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/grenouille/pkg/provider/vad"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":        {"command", "coqui", "elevenlabs"},
	"embeddings": {"openai", "ollama"},
	"vad":        {"energy"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultSampleRate            = 16000
	DefaultBufferSeconds         = 15
	DefaultEndSilence            = 800 * time.Millisecond
	DefaultMinUtterance          = 1500 * time.Millisecond
	DefaultDetectionLatency      = 2000 * time.Millisecond
	DefaultPollInterval          = 10 * time.Millisecond
	DefaultMaxClassifierFailures = 50
	DefaultVADFrameMs            = 10
	DefaultWakewordName          = "computer"
	DefaultWakewordThreshold     = 0.5
	DefaultWakewordAvgThreshold  = 0.15
	DefaultHistoryCapacity       = 1000
)

// DefaultPlayer is the WAV player command used for cues and synthesized
// speech.
var DefaultPlayer = []string{"aplay", "-q"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// envRef matches ${NAME} references. Bare $NAME is left alone so values such
// as passwords may contain a dollar sign.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${NAME} in data with the value of the environment
// variable NAME. Unset variables expand to the empty string.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. ${NAME} references are expanded from the environment first.
// Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = LogFormatText
	}

	a := &cfg.Audio
	if a.Source == "" {
		a.Source = SourcePCM
	}
	if a.Source == SourcePCM && a.Input == "" {
		a.Input = "-"
	}
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.InputRate == 0 {
		a.InputRate = a.SampleRate
	}
	if a.Channels == 0 {
		a.Channels = 1
	}
	if a.BufferSeconds == 0 {
		a.BufferSeconds = DefaultBufferSeconds
	}

	seg := &cfg.Segmenter
	if seg.EndSilence == 0 {
		seg.EndSilence = DefaultEndSilence
	}
	if seg.MinUtterance == 0 {
		seg.MinUtterance = DefaultMinUtterance
	}
	if seg.DetectionLatency == 0 {
		seg.DetectionLatency = DefaultDetectionLatency
	}
	if seg.PollInterval == 0 {
		seg.PollInterval = DefaultPollInterval
	}
	if seg.MaxClassifierFailures == 0 {
		seg.MaxClassifierFailures = DefaultMaxClassifierFailures
	}

	if cfg.VAD.Name == "" {
		cfg.VAD.Name = "energy"
	}
	if cfg.VAD.Mode == "" {
		cfg.VAD.Mode = vad.ModeVeryAggressive.String()
	}
	if cfg.VAD.FrameMs == 0 {
		cfg.VAD.FrameMs = DefaultVADFrameMs
	}

	w := &cfg.Wakeword
	if w.Name == "" {
		w.Name = DefaultWakewordName
	}
	if w.Threshold == 0 {
		w.Threshold = DefaultWakewordThreshold
	}
	if w.AvgThreshold == 0 {
		w.AvgThreshold = DefaultWakewordAvgThreshold
	}

	as := &cfg.Assistant
	if len(as.Names) == 0 {
		as.Names = []string{"computer", "peter"}
	}
	if as.PrefixedNames == nil {
		as.PrefixedNames = []string{"peter"}
	}
	if len(as.Player) == 0 {
		as.Player = slices.Clone(DefaultPlayer)
	}

	if cfg.History.Capacity == 0 {
		cfg.History.Capacity = DefaultHistoryCapacity
	}
}

var assistantName = regexp.MustCompile(`^[a-z]+$`)

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		add("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat)
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		add("server.trace_sample_ratio %g must be between 0 and 1", r)
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		add("server.tls requires both cert_file and key_file")
	}

	// Audio
	a := cfg.Audio
	if !a.Source.IsValid() {
		add("audio.source %q is invalid; valid values: pcm, websocket", a.Source)
	}
	if a.Source == SourceWebsocket && cfg.Server.ListenAddr == "" {
		add("audio.source websocket requires server.listen_addr")
	}
	if a.InputRate <= 0 {
		add("audio.input_rate must be positive, got %d", a.InputRate)
	}
	if a.Channels <= 0 {
		add("audio.channels must be positive, got %d", a.Channels)
	}
	vadCfg := vad.Config{SampleRate: a.SampleRate, FrameSizeMs: cfg.VAD.FrameMs}
	if err := vadCfg.Validate(); err != nil {
		add("audio.sample_rate/vad.frame_ms: %w", err)
	}
	if a.BufferSeconds < 1 {
		add("audio.buffer_seconds must be at least 1, got %g", a.BufferSeconds)
	}

	// Segmenter
	seg := cfg.Segmenter
	for name, d := range map[string]time.Duration{
		"end_silence":       seg.EndSilence,
		"min_utterance":     seg.MinUtterance,
		"detection_latency": seg.DetectionLatency,
		"poll_interval":     seg.PollInterval,
	} {
		if d < 0 {
			add("segmenter.%s must not be negative, got %s", name, d)
		}
	}
	if seg.MaxClassifierFailures < 0 {
		add("segmenter.max_classifier_failures must not be negative")
	}
	if a.BufferSeconds > 0 && seg.DetectionLatency.Seconds() >= a.BufferSeconds {
		add("segmenter.detection_latency %s does not fit in a %gs buffer", seg.DetectionLatency, a.BufferSeconds)
	}

	// VAD
	validateProviderName("vad", cfg.VAD.Name)
	if _, err := vad.ParseMode(cfg.VAD.Mode); err != nil {
		add("vad.mode: %w", err)
	}

	// Wake word
	w := cfg.Wakeword
	if len(w.Templates) == 0 {
		add("wakeword.templates: at least one template recording is required")
	}
	if w.Threshold < 0 || w.Threshold > 1 {
		add("wakeword.threshold %.2f is out of range [0, 1]", w.Threshold)
	}
	if w.AvgThreshold < 0 || w.AvgThreshold > 1 {
		add("wakeword.avg_threshold %.2f is out of range [0, 1]", w.AvgThreshold)
	}

	// Providers
	for _, kind := range []string{"stt", "llm", "tts"} {
		entry := cfg.Providers.entry(kind)
		if entry.Name == "" {
			add("providers.%s.name is required", kind)
		}
		validateEntry(kind, entry)
	}
	if e := cfg.Providers.Embeddings; e.Name != "" {
		validateEntry("embeddings", e)
		if cfg.History.PostgresDSN == "" {
			slog.Warn("providers.embeddings is configured but history.postgres_dsn is empty; semantic history search is unavailable")
		}
	}
	if r := cfg.Providers.Resilience; r.MaxFailures < 0 || r.ResetTimeout < 0 {
		add("providers.resilience values must not be negative")
	}

	// Assistant
	as := cfg.Assistant
	for i, n := range slices.Concat(as.Names, as.PrefixedNames) {
		if !assistantName.MatchString(n) {
			add("assistant name %q (entry %d) must be lowercase letters only", n, i)
		}
	}
	if as.Temperature < 0 || as.Temperature > 2 {
		add("assistant.temperature %.2f is out of range [0, 2]", as.Temperature)
	}
	if as.MaxTokens < 0 {
		add("assistant.max_tokens must not be negative")
	}

	// History
	if cfg.History.Capacity < 0 {
		add("history.capacity must not be negative")
	}

	return errors.Join(errs...)
}

func (p ProvidersConfig) entry(kind string) ProviderEntry {
	switch kind {
	case "stt":
		return p.STT
	case "llm":
		return p.LLM
	case "tts":
		return p.TTS
	case "embeddings":
		return p.Embeddings
	}
	return ProviderEntry{}
}

// validateEntry warns about unknown names of an entry and its fallbacks.
func validateEntry(kind string, e ProviderEntry) {
	validateProviderName(kind, e.Name)
	for _, fb := range e.Fallbacks {
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or a third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
