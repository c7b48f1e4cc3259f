// Package listener runs the poll loop that turns the rolling capture buffer
// into utterances.
//
// Every tick the loop extracts the most recent VAD frame (and, while waiting
// for the wake word, the most recent wake-word frame) from the ring buffer,
// classifies them outside the buffer lock and advances a [segment.Machine].
// When the machine finalizes an utterance, the trailing audio is cut from the
// buffer and handed to a [Handler] synchronously. Capture keeps writing into
// the buffer during the handoff, but nothing is classified until the handler
// returns.
//
// All state except the ring buffer is owned by the goroutine calling
// [Listener.Run] (or [Listener.Tick]). The ring buffer is shared with the
// capture source, which only ever calls [audio.RingBuffer.OverwriteSlice].
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/grenouille/internal/observe"
	"github.com/MrWong99/grenouille/internal/segment"
	"github.com/MrWong99/grenouille/pkg/audio"
	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
)

// Defaults for the poll loop.
const (
	DefaultPollInterval          = 10 * time.Millisecond
	DefaultMaxClassifierFailures = 50
)

// ErrTooManyClassifierFailures is returned by Run when the classifiers failed
// on more consecutive ticks than allowed.
var ErrTooManyClassifierFailures = errors.New("listener: too many consecutive classifier failures")

// Handler consumes finalized utterances.
//
// HandleUtterance runs on the poll goroutine. A returned error is logged and
// the loop continues, unless the error (or one it wraps) reports itself as
// fatal through a Fatal() bool method, or is a *segment.InvariantError. Those
// stop the loop.
type Handler interface {
	HandleUtterance(ctx context.Context, u segment.Utterance) error
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, u segment.Utterance) error

// HandleUtterance calls f.
func (f HandlerFunc) HandleUtterance(ctx context.Context, u segment.Utterance) error {
	return f(ctx, u)
}

// Listener is the poll loop. Create one with [New].
type Listener struct {
	buf     *audio.RingBuffer
	voice   *segment.VoiceGate
	wake    *segment.WakeGate
	machine *segment.Machine
	handler Handler

	rate        int
	interval    time.Duration
	maxFailures int
	now         func() time.Time
	metrics     *observe.Metrics

	vadFrame  *audio.Extractor
	wakeFrame *audio.Extractor
	warmup    int

	failures    int
	lastEvicted uint64

	pendingTiming atomic.Pointer[segment.Timing]
	lastTick      atomic.Int64
	utterances    atomic.Int64
}

// Option configures a [Listener].
type Option func(*Listener)

// WithPollInterval sets the tick period. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithMaxClassifierFailures sets how many consecutive ticks may fail
// classification before Run gives up. Non-positive values are ignored.
func WithMaxClassifierFailures(n int) Option {
	return func(l *Listener) {
		if n > 0 {
			l.maxFailures = n
		}
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) { l.now = now }
}

// WithMetrics records loop metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// WithSampleRate sets the rate of the audio in the buffer. Defaults to
// [audio.DefaultSampleRate].
func WithSampleRate(rate int) Option {
	return func(l *Listener) {
		if rate > 0 {
			l.rate = rate
		}
	}
}

// New wires a listener around buf. The machine must be freshly constructed
// (Silent); h receives every finalized utterance.
func New(buf *audio.RingBuffer, voice *segment.VoiceGate, wake *segment.WakeGate, machine *segment.Machine, h Handler, opts ...Option) (*Listener, error) {
	switch {
	case buf == nil:
		return nil, errors.New("listener: ring buffer is required")
	case voice == nil || wake == nil:
		return nil, errors.New("listener: voice and wake-word gates are required")
	case machine == nil:
		return nil, errors.New("listener: state machine is required")
	case h == nil:
		return nil, errors.New("listener: handler is required")
	}

	l := &Listener{
		buf:         buf,
		voice:       voice,
		wake:        wake,
		machine:     machine,
		handler:     h,
		rate:        audio.DefaultSampleRate,
		interval:    DefaultPollInterval,
		maxFailures: DefaultMaxClassifierFailures,
		now:         time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}

	if voice.FrameLen() <= 0 || wake.FrameLen() <= 0 {
		return nil, fmt.Errorf("listener: invalid frame lengths (vad %d, wakeword %d)", voice.FrameLen(), wake.FrameLen())
	}
	if m := max(voice.FrameLen(), wake.FrameLen()); m >= buf.Cap() {
		return nil, fmt.Errorf("listener: buffer of %d samples cannot hold a %d-sample frame", buf.Cap(), m)
	}
	l.vadFrame = audio.NewExtractor(voice.FrameLen())
	l.wakeFrame = audio.NewExtractor(wake.FrameLen())
	l.warmup = max(voice.FrameLen(), wake.FrameLen())
	return l, nil
}

// Run ticks until ctx is cancelled, returning nil in that case. It returns
// early with an error when an invariant breaks, the handler reports a fatal
// error, or the classifiers keep failing.
func (l *Listener) Run(ctx context.Context) error {
	slog.Info("listener: started",
		"poll_interval", l.interval,
		"vad_frame", l.vadFrame.Len(),
		"wakeword_frame", l.wakeFrame.Len(),
		"buffer_samples", l.buf.Cap(),
	)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("listener: stopped", "utterances", l.utterances.Load())
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick runs one iteration of the loop at the listener's clock.
func (l *Listener) Tick(ctx context.Context) error {
	now := l.now()
	l.lastTick.Store(now.UnixNano())

	if t := l.pendingTiming.Swap(nil); t != nil {
		l.machine.SetTiming(*t)
		slog.Info("listener: timing updated",
			"end_silence", t.EndSilence,
			"min_utterance", t.MinUtterance,
			"detection_latency", t.DetectionLatency,
		)
	}
	l.recordEvictions(ctx)

	listening := l.machine.Listening()
	var (
		vadFrame, wakeFrame []audio.Sample
		ready               bool
	)
	l.buf.View(func(a, b []audio.Sample) {
		if len(a)+len(b) <= l.warmup {
			return
		}
		ready = true
		vadFrame = l.vadFrame.FromSlices(a, b)
		if listening {
			wakeFrame = l.wakeFrame.FromSlices(a, b)
		}
	})
	if !ready {
		return nil
	}

	start := time.Now()
	voice, det, err := l.classify(ctx, vadFrame, wakeFrame)
	if err != nil {
		return l.classifierFailed(ctx, err)
	}
	l.failures = 0

	tr, err := l.machine.Step(now, voice, det)
	if err != nil {
		return err
	}
	if tr.Changed() {
		slog.Debug("listener: state changed", "from", tr.From, "to", tr.To)
	}
	if tr.Detection != nil {
		slog.Info("listener: wake word detected",
			"wakeword", tr.Detection.Name,
			"confidence", tr.Detection.Confidence,
		)
		l.metrics.WakewordDetections.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("wakeword", tr.Detection.Name)))
	}
	l.metrics.PollTickDuration.Record(ctx, time.Since(start).Seconds())

	if !tr.Finalize {
		return nil
	}
	return l.finalize(ctx, tr.SpokenFor)
}

func (l *Listener) classify(ctx context.Context, vadFrame, wakeFrame []audio.Sample) (bool, *wakeword.Detection, error) {
	vadStart := time.Now()
	voice, err := l.voice.IsVoice(vadFrame)
	l.metrics.VADDuration.Record(ctx, time.Since(vadStart).Seconds())
	if err != nil {
		return false, nil, err
	}
	if wakeFrame == nil {
		return voice, nil, nil
	}
	det, err := l.wake.Detect(wakeFrame)
	if err != nil {
		return false, nil, err
	}
	return voice, det, nil
}

// classifierFailed skips the tick, or gives up after too many in a row.
func (l *Listener) classifierFailed(ctx context.Context, err error) error {
	gate := "unknown"
	var ce *segment.ClassifierError
	if errors.As(err, &ce) {
		gate = ce.Gate
	}
	l.metrics.ClassifierErrors.Add(ctx, 1, metric.WithAttributes(observe.Attr("gate", gate)))

	l.failures++
	if l.failures >= l.maxFailures {
		return fmt.Errorf("%w (%d): %w", ErrTooManyClassifierFailures, l.failures, err)
	}
	slog.Warn("listener: classifier failed, skipping tick", "gate", gate, "consecutive", l.failures, "err", err)
	return nil
}

func (l *Listener) finalize(ctx context.Context, spokenFor time.Duration) error {
	// Capture may have evicted samples while this tick was classifying.
	l.recordEvictions(ctx)
	u, err := segment.Cut(l.buf, spokenFor, l.rate)
	if err != nil {
		return err
	}
	n := l.utterances.Add(1)

	log := slog.With("utterance", n, "spoken_for", spokenFor, "samples", len(u.Samples))
	if u.Truncated {
		log.Warn("listener: utterance longer than buffer, oldest audio lost",
			"requested", u.Requested,
			"held", u.End,
		)
		l.metrics.UtteranceTruncated.Add(ctx, 1)
	}
	log.Info("listener: utterance finalized")
	l.metrics.UtteranceDuration.Record(ctx, u.Duration().Seconds())

	if err := l.handler.HandleUtterance(ctx, u); err != nil {
		if isFatal(err) {
			return err
		}
		log.Error("listener: utterance handling failed", "err", err)
	}
	return nil
}

func (l *Listener) recordEvictions(ctx context.Context) {
	ev := l.buf.Evicted()
	if ev > l.lastEvicted {
		l.metrics.BufferEvicted.Add(ctx, int64(ev-l.lastEvicted))
	}
	l.lastEvicted = ev
}

// isFatal reports whether a handler error must stop the loop.
func isFatal(err error) bool {
	var inv *segment.InvariantError
	if errors.As(err, &inv) {
		return true
	}
	var f interface{ Fatal() bool }
	return errors.As(err, &f) && f.Fatal()
}

// SetTiming schedules new machine thresholds, applied at the start of the next
// tick. Safe to call from any goroutine.
func (l *Listener) SetTiming(t segment.Timing) {
	l.pendingTiming.Store(&t)
}

// LastTick returns the clock reading of the most recent tick, or the zero time
// before the first one. Safe to call from any goroutine.
func (l *Listener) LastTick() time.Time {
	ns := l.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Utterances returns how many utterances have been finalized.
func (l *Listener) Utterances() int64 { return l.utterances.Load() }

// State returns the machine state. Only meaningful on the poll goroutine or
// after Run has returned.
func (l *Listener) State() segment.State { return l.machine.State() }
