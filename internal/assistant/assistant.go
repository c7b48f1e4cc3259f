// Package assistant answers finalized utterances.
//
// For each utterance the [Assistant] plays the "on" cue, transcribes the
// audio, plays the "done" cue and cleans the transcript into a prompt. Prompts
// that are not addressed to the assistant by name are dropped with the
// "unclear" cue. Addressed prompts go to the chat session; a reply of type
// "response" is spoken, anything else gets the "unclear" cue. Every utterance
// is recorded in the history store.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/grenouille/internal/chat"
	"github.com/MrWong99/grenouille/internal/cue"
	"github.com/MrWong99/grenouille/internal/history"
	"github.com/MrWong99/grenouille/internal/listener"
	"github.com/MrWong99/grenouille/internal/observe"
	"github.com/MrWong99/grenouille/internal/segment"
	"github.com/MrWong99/grenouille/internal/transcript"
	"github.com/MrWong99/grenouille/pkg/provider/stt"
	"github.com/MrWong99/grenouille/pkg/provider/tts"
)

var _ listener.Handler = (*Assistant)(nil)

// CuePlayer plays acknowledgement cues. Playback is best effort.
type CuePlayer interface {
	Play(ctx context.Context, c cue.Cue)
}

type noCues struct{}

func (noCues) Play(context.Context, cue.Cue) {}

// Assistant is the utterance handler. It is driven from the poll goroutine
// and handles one utterance at a time.
type Assistant struct {
	stt     stt.Transcriber
	session *chat.Session
	speaker tts.Speaker

	cues    CuePlayer
	address *transcript.AddressMatcher
	history history.Store
	metrics *observe.Metrics
	now     func() time.Time
}

// Option configures an [Assistant].
type Option func(*Assistant)

// WithCues sets the cue player. Without one, cues are silent.
func WithCues(p CuePlayer) Option {
	return func(a *Assistant) { a.cues = p }
}

// WithAddressMatcher replaces the default matcher for
// [transcript.DefaultNames].
func WithAddressMatcher(m *transcript.AddressMatcher) Option {
	return func(a *Assistant) { a.address = m }
}

// WithHistory records every utterance in s.
func WithHistory(s history.Store) Option {
	return func(a *Assistant) { a.history = s }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithClock replaces time.Now for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) { a.now = now }
}

// New creates an assistant.
func New(t stt.Transcriber, s *chat.Session, sp tts.Speaker, opts ...Option) (*Assistant, error) {
	if t == nil || s == nil || sp == nil {
		return nil, errors.New("assistant: transcriber, chat session and speaker are required")
	}
	a := &Assistant{
		stt:     t,
		session: s,
		speaker: sp,
		cues:    noCues{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.address == nil {
		m, err := transcript.NewAddressMatcher(transcript.DefaultNames)
		if err != nil {
			return nil, err
		}
		a.address = m
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a, nil
}

// HandleUtterance implements [listener.Handler]. Transcription and completion
// failures are returned as *CollaboratorError, speech synthesis failures as
// *FatalError. Unaddressed prompts and unusable replies are not errors.
func (a *Assistant) HandleUtterance(ctx context.Context, u segment.Utterance) error {
	ctx, span := observe.StartSpan(ctx, "assistant.utterance")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("utterance.spoken_ms", u.SpokenFor.Milliseconds()),
		attribute.Int("utterance.samples", len(u.Samples)),
		attribute.Bool("utterance.truncated", u.Truncated),
	)

	turn := history.Turn{At: a.now(), SpokenFor: u.SpokenFor, Truncated: u.Truncated}
	status, err := a.handle(ctx, u, &turn)

	a.metrics.RecordUtterance(ctx, status)
	span.SetAttributes(attribute.String("utterance.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		turn.Error = err.Error()
	}
	a.record(ctx, turn)
	return err
}

func (a *Assistant) handle(ctx context.Context, u segment.Utterance, turn *history.Turn) (string, error) {
	log := observe.Logger(ctx)
	a.cues.Play(ctx, cue.On)

	segs, err := a.transcribe(ctx, u, turn)
	if err != nil {
		turn.Outcome = history.OutcomeFailed
		a.cues.Play(ctx, cue.Unclear)
		return observe.StatusFailed, &CollaboratorError{Stage: "stt", Err: err}
	}
	a.cues.Play(ctx, cue.Done)

	prompt := transcript.Prompt(segs)
	turn.Prompt = prompt
	if prompt == "" {
		log.Info("assistant: no speech recognized")
		turn.Outcome = history.OutcomeIgnored
		a.cues.Play(ctx, cue.Unclear)
		return observe.StatusNoSpeech, nil
	}

	addr, ok := a.address.Match(prompt)
	if !ok {
		log.Info("assistant: prompt not addressed to assistant", "prompt", prompt)
		turn.Outcome = history.OutcomeIgnored
		a.cues.Play(ctx, cue.Unclear)
		return observe.StatusIgnored, nil
	}
	if addr.Method != transcript.MethodExact {
		log.Info("assistant: corrected misheard name", "heard", addr.Heard, "name", addr.Name, "method", addr.Method, "score", addr.Score)
		prompt = addr.Prompt
		turn.Prompt = prompt
	}
	log.Info("assistant: handling prompt", "prompt", prompt)

	content, err := a.complete(ctx, prompt, turn)
	if err != nil {
		turn.Outcome = history.OutcomeFailed
		a.cues.Play(ctx, cue.Unclear)
		return observe.StatusFailed, &CollaboratorError{Stage: "llm", Err: err}
	}
	turn.Reply = content

	resp, err := chat.ParseResponse(content)
	if err != nil {
		log.Warn("assistant: unusable reply", "reply", content, "err", err)
		turn.Outcome = history.OutcomeUnclear
		a.cues.Play(ctx, cue.Unclear)
		return observe.StatusUnclear, nil
	}
	turn.ReplyType = string(resp.Type)

	text, ok := resp.Speakable()
	if !ok {
		status := observe.StatusUnclear
		if resp.Type == chat.TypePython && resp.Python != nil {
			log.Info("assistant: reply requests python, which is not executed", "python", *resp.Python)
			status = observe.StatusCodeAction
		}
		turn.Outcome = history.OutcomeUnclear
		a.cues.Play(ctx, cue.Unclear)
		return status, nil
	}

	if spoken := spokenText(text); spoken != text {
		log.Info("assistant: reading table reply as sentences", "spoken", spoken)
		text = spoken
	}
	if err := a.speak(ctx, text, turn); err != nil {
		turn.Outcome = history.OutcomeFailed
		return observe.StatusFailed, &FatalError{Stage: "tts", Err: err}
	}
	turn.Outcome = history.OutcomeAnswered
	return observe.StatusAnswered, nil
}

func (a *Assistant) transcribe(ctx context.Context, u segment.Utterance, turn *history.Turn) ([]stt.Segment, error) {
	ctx, finish := observe.StartStage(ctx, "stt")
	segs, err := a.stt.Transcribe(ctx, u.Samples, u.SampleRate)
	elapsed := finish(err)
	turn.STTDuration = elapsed
	a.metrics.STTDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		return nil, err
	}

	factor := 0.0
	if elapsed > 0 {
		factor = u.SpokenFor.Seconds() / elapsed.Seconds()
	}
	observe.Logger(ctx).Info("assistant: transcribed",
		"took", elapsed,
		"realtime_factor", factor,
		"segments", len(segs),
	)
	return segs, nil
}

func (a *Assistant) complete(ctx context.Context, prompt string, turn *history.Turn) (string, error) {
	if err := a.session.PushUserPrompt(prompt); err != nil {
		return "", err
	}
	before := a.session.Usage()

	ctx, finish := observe.StartStage(ctx, "llm")
	reply, err := a.session.Complete(ctx)
	elapsed := finish(err)
	turn.LLMDuration = elapsed
	a.metrics.LLMDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		// Keep the history answerable: an unanswered user turn would confuse
		// the next completion.
		a.session.Pop()
		return "", err
	}
	after := a.session.Usage()
	a.metrics.RecordTokens(ctx, after.PromptTokens-before.PromptTokens, after.CompletionTokens-before.CompletionTokens)
	observe.Logger(ctx).Debug("assistant: completion done", "took", elapsed, "session_tokens", a.session.Tokens())
	return reply.Content, nil
}

// spokenText rewrites a markdown table in text into one sentence per row so
// the speaker does not read out the pipes.
func spokenText(text string) string {
	rows, ok := chat.AsTable(text)
	if !ok {
		return text
	}
	start := strings.IndexByte(text, '|')
	end := strings.LastIndexByte(text, '|')

	sentences := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := slices.DeleteFunc(row, func(c string) bool { return c == "" })
		if len(cells) > 0 {
			sentences = append(sentences, strings.Join(cells, ", ")+".")
		}
	}
	parts := []string{strings.TrimSpace(text[:start]), strings.Join(sentences, " "), strings.TrimSpace(text[end+1:])}
	return strings.Join(slices.DeleteFunc(parts, func(p string) bool { return p == "" }), " ")
}

func (a *Assistant) speak(ctx context.Context, text string, turn *history.Turn) error {
	ctx, finish := observe.StartStage(ctx, "tts")
	err := a.speaker.Speak(ctx, text)
	elapsed := finish(err)
	turn.TTSDuration = elapsed
	a.metrics.TTSDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		return err
	}
	observe.Logger(ctx).Info("assistant: spoke reply", "took", elapsed, "chars", len(text))
	return nil
}

func (a *Assistant) record(ctx context.Context, t history.Turn) {
	if a.history == nil {
		return
	}
	if err := a.history.Append(ctx, t); err != nil {
		slog.Warn("assistant: failed to record history", "err", err)
	}
}
