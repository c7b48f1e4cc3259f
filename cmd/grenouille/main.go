// Command grenouille is the main entry point of the wake-word voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/grenouille/internal/app"
	"github.com/MrWong99/grenouille/internal/config"
	"github.com/MrWong99/grenouille/internal/health"
	"github.com/MrWong99/grenouille/internal/observe"
	"github.com/MrWong99/grenouille/internal/resilience"
	"github.com/MrWong99/grenouille/pkg/audio/playback"
	"github.com/MrWong99/grenouille/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/grenouille/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/grenouille/pkg/provider/embeddings/openai"
	"github.com/MrWong99/grenouille/pkg/provider/llm"
	"github.com/MrWong99/grenouille/pkg/provider/llm/anyllm"
	"github.com/MrWong99/grenouille/pkg/provider/llm/openai"
	"github.com/MrWong99/grenouille/pkg/provider/stt"
	"github.com/MrWong99/grenouille/pkg/provider/stt/whisper"
	"github.com/MrWong99/grenouille/pkg/provider/tts"
	"github.com/MrWong99/grenouille/pkg/provider/tts/command"
	"github.com/MrWong99/grenouille/pkg/provider/tts/coqui"
	"github.com/MrWong99/grenouille/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/grenouille/pkg/provider/vad"
	"github.com/MrWong99/grenouille/pkg/provider/vad/energy"
	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
	"github.com/MrWong99/grenouille/pkg/provider/wakeword/template"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "grenouille.yaml", "path to the YAML configuration file")
	input := flag.String("input", "", `PCM input file, "-" for stdin (overrides audio.input)`)
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "grenouille: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "grenouille: %v\n", err)
		}
		return 1
	}
	overrides := func(c *config.Config) {
		if *input != "" {
			c.Audio.Input = *input
		}
	}
	overrides(cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, cfg.Server.LogFormat, level))

	slog.Info("grenouille starting",
		"version", version,
		"config", *configPath,
		"source", cfg.Audio.Source,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitTelemetry(observe.TelemetryConfig{
		ServiceVersion: version,
		Source:         string(cfg.Audio.Source),
		AssistantNames: cfg.Assistant.Names,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(os.Stdout, cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, config.WithTransform(overrides))
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go func() {
			_ = watcher.Run(ctx, func(r config.Reload) { application.ApplyConfig(r.Next) })
		}()
	}

	slog.Info("listening for the wake word, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are the LLM names served through any-llm-go. "openai" uses
// the dedicated openai-go client instead.
var anyllmBackends = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllmBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterSynthesizer("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := optString(entry.Options, "speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterSynthesizer("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, elevenlabs.WithSampleRate(rate))
		}
		return elevenlabs.New(entry.APIKey, optString(entry.Options, "voice_id"), opts...)
	})

	// command runs a local speech program such as espeak or say.
	reg.RegisterSpeaker("command", func(entry config.ProviderEntry) (tts.Speaker, error) {
		program := optString(entry.Options, "program")
		if program == "" {
			program = "espeak"
		}
		var opts []command.Option
		if args := optStrings(entry.Options, "args"); len(args) > 0 {
			opts = append(opts, command.WithArgs(args...))
		}
		if q, ok := entry.Options["quote"].(bool); ok {
			opts = append(opts, command.WithQuote(q))
		}
		return command.New(program, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, oaembed.WithDimensions(dims))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaembed.WithTimeout(d))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		doc, docOK := entry.Options["document_prefix"].(string)
		query, queryOK := entry.Options["query_prefix"].(string)
		if docOK || queryOK {
			opts = append(opts, ollamaembed.WithPrefixes(doc, query))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(c vad.Config) (vad.Classifier, error) {
		return energy.New(c)
	})

	for _, kind := range []string{"stt", "llm", "tts", "embeddings", "vad"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// STT, LLM and synthesizing TTS backends are wrapped in circuit-breaking
// fallback groups.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	metrics := observe.DefaultMetrics()
	fbCfg := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  cfg.Providers.Resilience.MaxFailures,
				ResetTimeout: cfg.Providers.Resilience.ResetTimeout,
			},
			Kind:    kind,
			Metrics: metrics,
		}
	}

	// ── Player ────────────────────────────────────────────────────────────────
	player, err := playback.New(cfg.Assistant.Player)
	if err != nil {
		return nil, fmt.Errorf("create player: %w", err)
	}
	ps.Player = player

	// ── STT ───────────────────────────────────────────────────────────────────
	sttEntry := cfg.Providers.STT
	primarySTT, err := reg.CreateSTT(sttEntry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", sttEntry.Name, err)
	}
	sttGroup := resilience.NewSTTFallback(primarySTT, sttEntry.Name, fbCfg("stt"))
	for _, fb := range sttEntry.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		sttGroup.AddFallback(fb.Name, p)
	}
	ps.STT = sttGroup
	ps.Checks = append(ps.Checks, health.Checker{Name: "stt", Check: sttGroup.Check})
	logProvider("stt", sttEntry)

	// ── LLM ───────────────────────────────────────────────────────────────────
	llmEntry := cfg.Providers.LLM
	primaryLLM, err := reg.CreateLLM(llmEntry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", llmEntry.Name, err)
	}
	llmGroup := resilience.NewLLMFallback(primaryLLM, llmEntry.Name, fbCfg("llm"))
	for _, fb := range llmEntry.Fallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
		}
		llmGroup.AddFallback(fb.Name, p)
	}
	ps.LLM = llmGroup
	ps.Checks = append(ps.Checks, health.Checker{Name: "llm", Check: llmGroup.Check})
	logProvider("llm", llmEntry)

	// ── TTS ───────────────────────────────────────────────────────────────────
	ttsEntry := cfg.Providers.TTS
	if reg.IsSpeaker(ttsEntry.Name) {
		if len(ttsEntry.Fallbacks) > 0 {
			slog.Warn("tts fallbacks are ignored for self-playing backends", "name", ttsEntry.Name)
		}
		sp, err := reg.CreateSpeaker(ttsEntry)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", ttsEntry.Name, err)
		}
		ps.Speaker = sp
	} else {
		primary, err := reg.CreateSynthesizer(ttsEntry)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", ttsEntry.Name, err)
		}
		synthGroup := resilience.NewSynthFallback(primary, ttsEntry.Name, fbCfg("tts"))
		for _, fb := range ttsEntry.Fallbacks {
			s, err := reg.CreateSynthesizer(fb)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
			}
			synthGroup.AddFallback(fb.Name, s)
		}
		ps.Speaker = tts.NewSpeaker(synthGroup, player)
		ps.Checks = append(ps.Checks, health.Checker{Name: "tts", Check: synthGroup.Check})
	}
	logProvider("tts", ttsEntry)

	// ── Embeddings (optional) ─────────────────────────────────────────────────
	if entry := cfg.Providers.Embeddings; entry.Name != "" && cfg.History.PostgresDSN != "" {
		p, err := reg.CreateEmbeddings(entry)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", entry.Name, err)
		}
		ps.Embeddings = p
		logProvider("embeddings", entry)
	}

	// ── Classifiers ───────────────────────────────────────────────────────────
	mode, err := vad.ParseMode(cfg.VAD.Mode)
	if err != nil {
		return nil, err
	}
	classifier, err := reg.CreateVAD(cfg.VAD.Name, vad.Config{
		SampleRate:  cfg.Audio.SampleRate,
		FrameSizeMs: cfg.VAD.FrameMs,
		Mode:        mode,
	})
	if err != nil {
		return nil, fmt.Errorf("create vad %q: %w", cfg.VAD.Name, err)
	}
	ps.VAD = classifier

	detector, err := template.New(wakeword.Config{
		Name:         cfg.Wakeword.Name,
		Templates:    cfg.Wakeword.Templates,
		SampleRate:   cfg.Audio.SampleRate,
		Threshold:    cfg.Wakeword.Threshold,
		AvgThreshold: cfg.Wakeword.AvgThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("create wake-word detector: %w", err)
	}
	ps.Wakeword = detector

	return ps, nil
}

func logProvider(kind string, entry config.ProviderEntry) {
	names := make([]string, 0, len(entry.Fallbacks))
	for _, fb := range entry.Fallbacks {
		names = append(names, fb.Name)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model, "fallbacks", names)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║      Grenouille startup summary       ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider(w, "Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider(w, "VAD", cfg.VAD.Name, cfg.VAD.Mode)
	printProvider(w, "Wake word", cfg.Wakeword.Name, "")
	source := string(cfg.Audio.Source)
	if cfg.Audio.Source == config.SourcePCM {
		source += " " + cfg.Audio.Input
	}
	printProvider(w, "Source", source, "")
	history := "memory"
	if cfg.History.PostgresDSN != "" {
		history = "postgres"
	}
	printProvider(w, "History", history, "")
	if cfg.Server.ListenAddr != "" {
		printProvider(w, "Listen addr", cfg.Server.ListenAddr, "")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optDuration parses a duration option such as "30s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}

// optStrings extracts a list of strings; non-string items are skipped.
func optStrings(opts map[string]any, key string) []string {
	items, _ := opts[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
