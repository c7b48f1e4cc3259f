// Package app wires the grenouille subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the capture source, the
// rolling buffer, the classifiers, the utterance listener and the assistant;
// Run drives them until the context ends; Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithCapture,
// WithHistory, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/grenouille/internal/assistant"
	"github.com/MrWong99/grenouille/internal/chat"
	"github.com/MrWong99/grenouille/internal/config"
	"github.com/MrWong99/grenouille/internal/cue"
	"github.com/MrWong99/grenouille/internal/health"
	"github.com/MrWong99/grenouille/internal/history"
	"github.com/MrWong99/grenouille/internal/listener"
	"github.com/MrWong99/grenouille/internal/observe"
	"github.com/MrWong99/grenouille/internal/segment"
	"github.com/MrWong99/grenouille/internal/transcript"
	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/audio/pcmfile"
	"github.com/MrWong99/grenouille/pkg/audio/wscapture"
	"github.com/MrWong99/grenouille/pkg/provider/embeddings"
	"github.com/MrWong99/grenouille/pkg/provider/llm"
	"github.com/MrWong99/grenouille/pkg/provider/stt"
	"github.com/MrWong99/grenouille/pkg/provider/tts"
	"github.com/MrWong99/grenouille/pkg/provider/vad"
	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
)

// Readiness limits for the activity probes on /readyz.
const (
	captureMaxAge  = 2 * time.Second
	listenerMaxAge = time.Second
)

// CapturePath is where the websocket capture source is mounted.
const CapturePath = "/capture"

// Providers holds one interface value per collaborator. Populated by main.go
// via the config registry; Embeddings may be nil.
type Providers struct {
	STT        stt.Transcriber
	LLM        llm.Provider
	Speaker    tts.Speaker
	Embeddings embeddings.Provider
	VAD        vad.Classifier
	Wakeword   wakeword.Detector

	// Player plays the cue sound files. Nil disables cues.
	Player cue.FilePlayer

	// Checks are extra readiness probes, typically one per fallback group.
	Checks []health.Checker
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	buf       *audio.RingBuffer
	capture   audio.Capture
	history   history.Store
	session   *chat.Session
	assistant *assistant.Assistant
	listener  *listener.Listener
	server    *http.Server
	checks    []health.Checker

	lastAudio atomic.Int64

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCapture injects a capture source instead of creating one from config.
func WithCapture(c audio.Capture) Option {
	return func(a *App) { a.capture = c }
}

// WithHistory injects a history store instead of creating one from config.
func WithHistory(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.ApplyConfig] change the level of the running logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. History ───────────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Chat session + assistant ──────────────────────────────────────
	if err := a.initAssistant(); err != nil {
		return nil, fmt.Errorf("app: init assistant: %w", err)
	}

	// ── 3. Capture ───────────────────────────────────────────────────────
	if err := a.initCapture(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 4. Buffer, gates, machine, listener ──────────────────────────────
	if err := a.initListener(); err != nil {
		return nil, fmt.Errorf("app: init listener: %w", err)
	}

	// ── 5. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

func (p *Providers) validate() error {
	switch {
	case p == nil:
		return errors.New("providers are required")
	case p.STT == nil:
		return errors.New("an STT provider is required")
	case p.LLM == nil:
		return errors.New("an LLM provider is required")
	case p.Speaker == nil:
		return errors.New("a TTS provider is required")
	case p.VAD == nil:
		return errors.New("a VAD classifier is required")
	case p.Wakeword == nil:
		return errors.New("a wake-word detector is required")
	}
	return nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory opens the PostgreSQL store when a DSN is configured and falls
// back to an in-memory log otherwise.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}

	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		a.history = history.NewMemStore(a.cfg.History.Capacity)
		slog.Info("turn history kept in memory", "capacity", a.cfg.History.Capacity)
		return nil
	}

	var opts []history.PostgresOption
	if a.providers.Embeddings != nil {
		opts = append(opts, history.WithEmbedder(a.providers.Embeddings))
	}
	store, err := history.NewPostgresStore(ctx, dsn, opts...)
	if err != nil {
		return err
	}
	a.history = store
	a.checks = append(a.checks, health.Checker{Name: "postgres", Check: store.Ping})
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("turn history stored in postgres", "semantic_search", a.providers.Embeddings != nil)
	return nil
}

// initAssistant builds the chat session, the address matcher and the cue
// player around the providers.
func (a *App) initAssistant() error {
	ac := a.cfg.Assistant

	seed := chat.DefaultSeed()
	if ac.SystemPrompt != "" {
		seed.SystemPrompt = ac.SystemPrompt
	}
	session, err := chat.NewSession(a.providers.LLM,
		chat.WithSeed(seed),
		chat.WithTemperature(ac.Temperature),
		chat.WithMaxTokens(ac.MaxTokens),
		chat.WithMaxContextTokens(ac.MaxContextTokens),
	)
	if err != nil {
		return err
	}
	a.session = session

	var matchOpts []transcript.AddressOption
	if len(ac.PrefixedNames) > 0 {
		matchOpts = append(matchOpts, transcript.WithPrefixedNames(ac.PrefixedNames...))
	}
	if ac.ExactNames {
		matchOpts = append(matchOpts, transcript.WithExactOnly())
	}
	matcher, err := transcript.NewAddressMatcher(ac.Names, matchOpts...)
	if err != nil {
		return err
	}

	opts := []assistant.Option{
		assistant.WithAddressMatcher(matcher),
		assistant.WithHistory(a.history),
		assistant.WithMetrics(a.metrics),
	}
	if a.providers.Player != nil {
		files := cue.Files{On: ac.Cues.On, Done: ac.Cues.Done, Unclear: ac.Cues.Unclear}
		opts = append(opts, assistant.WithCues(cue.NewPlayer(files, a.providers.Player)))
	}

	a.assistant, err = assistant.New(a.providers.STT, session, a.providers.Speaker, opts...)
	return err
}

// initCapture opens the configured capture source unless one was injected.
func (a *App) initCapture() error {
	if a.capture != nil {
		return nil
	}

	ac := a.cfg.Audio
	in := audio.Format{SampleRate: ac.InputRate, Channels: ac.Channels}

	switch ac.Source {
	case config.SourceWebsocket:
		a.capture = wscapture.New(in,
			wscapture.WithTargetRate(ac.SampleRate),
			wscapture.WithOriginPatterns(ac.OriginPatterns...),
		)
	default:
		// Stdin is paced by whatever writes into it.
		realtime := ac.Input != "-"
		if ac.Realtime != nil {
			realtime = *ac.Realtime && ac.Input != "-"
		}
		c, err := pcmfile.Open(ac.Input,
			pcmfile.WithFormat(in),
			pcmfile.WithTargetRate(ac.SampleRate),
			pcmfile.WithRealtime(realtime),
		)
		if err != nil {
			return err
		}
		a.capture = c
	}

	if got := a.capture.Format().SampleRate; got != ac.SampleRate {
		return fmt.Errorf("capture delivers %d Hz, buffer expects %d Hz", got, ac.SampleRate)
	}
	return nil
}

// initListener sizes the rolling buffer and assembles the poll loop.
func (a *App) initListener() error {
	ac := a.cfg.Audio
	a.buf = audio.NewRingBufferFor(ac.SampleRate, ac.BufferSeconds)

	vadFrame := audio.SamplesFor(ac.SampleRate, a.cfg.VAD.FrameMs)
	voice := segment.NewVoiceGate(a.providers.VAD, vadFrame)
	wake := segment.NewWakeGate(a.providers.Wakeword)

	timing := a.cfg.Segmenter.Timing()
	if err := timing.Validate(); err != nil {
		return err
	}

	l, err := listener.New(a.buf, voice, wake, segment.NewMachine(timing), a.assistant,
		listener.WithSampleRate(ac.SampleRate),
		listener.WithPollInterval(a.cfg.Segmenter.PollInterval),
		listener.WithMaxClassifierFailures(a.cfg.Segmenter.MaxClassifierFailures),
		listener.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.listener = l

	a.checks = append(a.checks,
		health.Stale("capture", captureMaxAge, a.LastAudio, nil),
		health.Stale("listener", listenerMaxAge, l.LastTick, nil),
	)
	a.checks = append(a.checks, a.providers.Checks...)
	return nil
}

// initServer builds the HTTP mux when a listen address is configured.
func (a *App) initServer() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.checks...).Register(mux)
	mux.Handle("GET /history", history.Handler(a.history))
	if ws, ok := a.capture.(*wscapture.Server); ok {
		mux.Handle(CapturePath, ws)
	}

	handler := otelhttp.NewHandler(observe.Middleware(a.metrics)(mux), "grenouille")
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// errCaptureEnded stops the group when a finite source is exhausted.
var errCaptureEnded = errors.New("app: capture ended")

// Run starts capture, the poll loop and the HTTP server and blocks until ctx
// is cancelled, the capture source ends or a subsystem fails. It returns nil
// on cancellation and when the source ran out.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.capture.Start(gctx, a.sink)
		if err != nil {
			return fmt.Errorf("app: capture: %w", err)
		}
		if gctx.Err() == nil {
			slog.Info("capture source exhausted")
			return errCaptureEnded
		}
		return nil
	})

	g.Go(func() error {
		if err := a.listener.Run(gctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	})

	if a.server != nil {
		g.Go(func() error { return a.serve(gctx) })
	}

	slog.Info("app running",
		"source", a.cfg.Audio.Source,
		"sample_rate", a.cfg.Audio.SampleRate,
		"buffer_seconds", a.cfg.Audio.BufferSeconds,
		"http", a.cfg.Server.ListenAddr,
	)

	err := g.Wait()
	if errors.Is(err, errCaptureEnded) {
		return nil
	}
	return err
}

// sink feeds the ring buffer. It runs on the capture goroutine.
func (a *App) sink(samples []audio.Sample) {
	a.buf.OverwriteSlice(samples)
	a.lastAudio.Store(time.Now().UnixNano())
}

// serve runs the HTTP server until ctx ends.
func (a *App) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	slog.Info("http server listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errc <- a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errc <- a.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown", "err", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: http server: %w", err)
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// LastAudio returns when capture last delivered samples, or the zero time.
func (a *App) LastAudio() time.Time {
	ns := a.lastAudio.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Listener returns the poll loop.
func (a *App) Listener() *listener.Listener { return a.listener }

// History returns the turn log.
func (a *App) History() history.Store { return a.history }

// Handler returns the HTTP handler, or nil when no listen address is set.
func (a *App) Handler() http.Handler {
	if a.server == nil {
		return nil
	}
	return a.server.Handler
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of next: the log level and the
// state machine timing. Everything else is logged as requiring a restart.
func (a *App) ApplyConfig(next *config.Config) {
	d := config.Diff(a.cfg, next)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TimingChanged {
		if err := d.NewTiming.Validate(); err != nil {
			slog.Warn("ignoring invalid segmenter timing", "err", err)
		} else {
			a.listener.SetTiming(d.NewTiming)
			slog.Info("segmenter timing changed",
				"end_silence", d.NewTiming.EndSilence,
				"min_utterance", d.NewTiming.MinUtterance,
				"detection_latency", d.NewTiming.DetectionLatency,
			)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes need a restart", "sections", d.RestartRequired)
	}

	// Keep restart-only values as they were so later diffs stay accurate.
	cfg := *a.cfg
	cfg.Server.LogLevel = next.Server.LogLevel
	cfg.Segmenter.EndSilence = next.Segmenter.EndSilence
	cfg.Segmenter.MinUtterance = next.Segmenter.MinUtterance
	cfg.Segmenter.DetectionLatency = next.Segmenter.DetectionLatency
	a.cfg = &cfg
}

// SlogLevel maps a config level onto slog.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete", "utterances", a.listener.Utterances())
	})
	return shutdownErr
}
