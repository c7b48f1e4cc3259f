package listener_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/grenouille/internal/listener"
	"github.com/MrWong99/grenouille/internal/observe"
	"github.com/MrWong99/grenouille/internal/segment"
	"github.com/MrWong99/grenouille/pkg/audio"
	vadmock "github.com/MrWong99/grenouille/pkg/provider/vad/mock"
	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
	wakemock "github.com/MrWong99/grenouille/pkg/provider/wakeword/mock"
)

const rate = 16000

// fakeClock advances only when told to.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recorder is a Handler that keeps every utterance and returns Err.
type recorder struct {
	got []segment.Utterance
	Err error
}

func (r *recorder) HandleUtterance(_ context.Context, u segment.Utterance) error {
	r.got = append(r.got, u)
	return r.Err
}

type fatalErr struct{}

func (fatalErr) Error() string { return "speaker gone" }
func (fatalErr) Fatal() bool   { return true }

type harness struct {
	l      *listener.Listener
	buf    *audio.RingBuffer
	clock  *fakeClock
	vad    *vadmock.Classifier
	wake   *wakemock.Detector
	h      *recorder
	reader *sdkmetric.ManualReader
	voice  bool
}

func newHarness(t *testing.T, capacity int, opts ...listener.Option) *harness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	hs := &harness{
		buf:    audio.NewRingBuffer(capacity),
		clock:  &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		wake:   &wakemock.Detector{},
		h:      &recorder{},
		reader: reader,
	}
	hs.vad = &vadmock.Classifier{Fn: func([]int16) bool { return hs.voice }}

	opts = append([]listener.Option{
		listener.WithClock(hs.clock.Now),
		listener.WithMetrics(m),
		listener.WithSampleRate(rate),
	}, opts...)
	hs.l, err = listener.New(
		hs.buf,
		segment.NewVoiceGate(hs.vad, 160),
		segment.NewWakeGate(hs.wake),
		segment.NewMachine(segment.DefaultTiming()),
		hs.h,
		opts...,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return hs
}

// tick simulates 10 ms of capture followed by one poll tick.
func (hs *harness) tick(t *testing.T) error {
	t.Helper()
	hs.clock.Advance(10 * time.Millisecond)
	hs.buf.OverwriteSlice(make([]audio.Sample, 160))
	return hs.l.Tick(context.Background())
}

func (hs *harness) ticks(t *testing.T, n int) {
	t.Helper()
	for i := range n {
		if err := hs.tick(t); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not a sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	voice := segment.NewVoiceGate(&vadmock.Classifier{}, 160)
	wake := segment.NewWakeGate(&wakemock.Detector{})
	h := &recorder{}

	tests := []struct {
		name string
		buf  *audio.RingBuffer
		m    *segment.Machine
		h    listener.Handler
	}{
		{name: "nil buffer", m: segment.NewMachine(segment.DefaultTiming()), h: h},
		{name: "nil machine", buf: audio.NewRingBuffer(16000), h: h},
		{name: "nil handler", buf: audio.NewRingBuffer(16000), m: segment.NewMachine(segment.DefaultTiming())},
		{name: "buffer smaller than frame", buf: audio.NewRingBuffer(400), m: segment.NewMachine(segment.DefaultTiming()), h: h},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := listener.New(tt.buf, voice, wake, tt.m, tt.h); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTick_WarmUpSkipsClassifiers(t *testing.T) {
	t.Parallel()

	hs := newHarness(t, 15*rate)
	// Three ticks deliver 480 samples: not yet more than the wake frame.
	hs.ticks(t, 3)
	if hs.vad.Calls() != 0 || hs.wake.Calls() != 0 {
		t.Fatalf("classifiers ran during warm-up: vad=%d wake=%d", hs.vad.Calls(), hs.wake.Calls())
	}
	if hs.l.LastTick().IsZero() {
		t.Error("LastTick not updated on a skipped tick")
	}

	hs.ticks(t, 1)
	if hs.vad.Calls() != 1 || hs.wake.Calls() != 1 {
		t.Errorf("after warm-up: vad=%d wake=%d, want 1 and 1", hs.vad.Calls(), hs.wake.Calls())
	}
	if got := hs.vad.FrameLengths[0]; got != 160 {
		t.Errorf("vad frame length = %d, want 160", got)
	}
}

func TestTick_EndToEnd(t *testing.T) {
	t.Parallel()

	hs := newHarness(t, 15*rate)
	hs.buf.OverwriteSlice(make([]audio.Sample, 5*rate))
	hs.wake.FireOnCall = 1
	hs.wake.Result = &wakeword.Detection{Name: "computer", Confidence: 0.6}

	// Tick 0 wakes the machine.
	hs.ticks(t, 1)
	if _, ok := hs.l.State().(segment.Speaking); !ok {
		t.Fatalf("state after wake = %s, want speaking", hs.l.State())
	}

	// 3000 ms of voice, then silence until finalization.
	hs.voice = true
	hs.ticks(t, 300)
	hs.voice = false
	hs.ticks(t, 81)
	if len(hs.h.got) != 0 {
		t.Fatalf("finalized after 800 ms of silence, want strictly more")
	}
	hs.ticks(t, 1)

	if len(hs.h.got) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(hs.h.got))
	}
	u := hs.h.got[0]
	if u.SpokenFor != 5820*time.Millisecond {
		t.Errorf("SpokenFor = %v, want 5.82s", u.SpokenFor)
	}
	if len(u.Samples) != 93120 {
		t.Errorf("samples = %d, want 93120", len(u.Samples))
	}
	held := 5*rate + 383*160
	if u.End != held || u.Start != held-93120 {
		t.Errorf("range = [%d, %d), want [%d, %d)", u.Start, u.End, held-93120, held)
	}
	if u.Truncated {
		t.Error("Truncated = true, want false")
	}
	if hs.buf.Len() != 0 {
		t.Errorf("buffer holds %d samples after finalize, want 0", hs.buf.Len())
	}
	if _, ok := hs.l.State().(segment.Silent); !ok {
		t.Errorf("state = %s, want silent", hs.l.State())
	}
	if hs.wake.Calls() != 1 {
		t.Errorf("wake-word detector ran %d times, want only while silent (1)", hs.wake.Calls())
	}
	if got := counter(t, hs.reader, "grenouille.wakeword.detections"); got != 1 {
		t.Errorf("wakeword detections = %d, want 1", got)
	}

	// The emptied buffer warms up again before anything is classified.
	calls := hs.vad.Calls()
	hs.ticks(t, 3)
	if hs.vad.Calls() != calls {
		t.Error("classified during post-utterance warm-up")
	}
}

func TestTick_TruncatedUtterance(t *testing.T) {
	t.Parallel()

	// A one second buffer cannot hold the two seconds of detection latency.
	hs := newHarness(t, rate)
	hs.buf.OverwriteSlice(make([]audio.Sample, rate))
	hs.wake.FireOnCall = 1
	hs.wake.Result = &wakeword.Detection{Name: "computer", Confidence: 0.9}

	hs.ticks(t, 1)
	hs.voice = false
	hs.ticks(t, 160)

	if len(hs.h.got) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(hs.h.got))
	}
	u := hs.h.got[0]
	if !u.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(u.Samples) != rate {
		t.Errorf("samples = %d, want the whole buffer (%d)", len(u.Samples), rate)
	}
	if got := counter(t, hs.reader, "grenouille.utterance.truncated"); got != 1 {
		t.Errorf("truncated counter = %d, want 1", got)
	}
	if got := counter(t, hs.reader, "grenouille.buffer.evicted"); got == 0 {
		t.Error("evictions of a full buffer were not counted")
	}
}

func TestTick_CountsEvictionsDuringFinalizingTick(t *testing.T) {
	t.Parallel()

	hs := newHarness(t, rate)
	hs.buf.OverwriteSlice(make([]audio.Sample, rate))
	hs.wake.FireOnCall = 1
	hs.wake.Result = &wakeword.Detection{Name: "computer", Confidence: 0.9}
	// Capture keeps writing into the full buffer while each tick classifies.
	hs.vad.Fn = func([]int16) bool {
		hs.buf.OverwriteSlice(make([]audio.Sample, 160))
		return false
	}

	for i := 0; len(hs.h.got) == 0; i++ {
		if i == 300 {
			t.Fatal("no utterance finalized")
		}
		if err := hs.tick(t); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if got, want := counter(t, hs.reader, "grenouille.buffer.evicted"), int64(hs.buf.Evicted()); got != want {
		t.Errorf("evicted counter = %d, buffer evicted %d", got, want)
	}
}

func TestTick_ClassifierFailures(t *testing.T) {
	t.Parallel()

	hs := newHarness(t, 15*rate, listener.WithMaxClassifierFailures(5))
	hs.buf.OverwriteSlice(make([]audio.Sample, rate))
	hs.vad.Err = errors.New("device unplugged")

	hs.ticks(t, 4)

	// One success resets the streak.
	hs.vad.Err = nil
	hs.ticks(t, 1)
	hs.vad.Err = errors.New("device unplugged")
	hs.ticks(t, 4)

	err := hs.tick(t)
	if !errors.Is(err, listener.ErrTooManyClassifierFailures) {
		t.Fatalf("err = %v, want ErrTooManyClassifierFailures", err)
	}
	if !segment.IsClassifierError(err) {
		t.Error("error does not wrap the ClassifierError")
	}
	if got := counter(t, hs.reader, "grenouille.classifier.errors"); got != 9 {
		t.Errorf("classifier errors = %d, want 9", got)
	}
}

func TestTick_WakewordFailureSkipsTick(t *testing.T) {
	t.Parallel()

	hs := newHarness(t, 15*rate)
	hs.buf.OverwriteSlice(make([]audio.Sample, rate))
	hs.wake.Err = errors.New("model not loaded")

	hs.ticks(t, 3)
	if _, ok := hs.l.State().(segment.Silent); !ok {
		t.Errorf("state = %s, want silent", hs.l.State())
	}
}

func TestTick_HandlerErrors(t *testing.T) {
	t.Parallel()

	wakeAndFinish := func(t *testing.T, hs *harness) error {
		t.Helper()
		hs.buf.OverwriteSlice(make([]audio.Sample, rate))
		hs.wake.FireOnCall = 1
		hs.wake.Result = &wakeword.Detection{Name: "computer"}
		for range 200 {
			if err := hs.tick(t); err != nil {
				return err
			}
		}
		return nil
	}

	t.Run("recoverable", func(t *testing.T) {
		t.Parallel()
		hs := newHarness(t, 15*rate)
		hs.h.Err = errors.New("stt: model timeout")
		if err := wakeAndFinish(t, hs); err != nil {
			t.Fatalf("recoverable handler error stopped the loop: %v", err)
		}
		if len(hs.h.got) != 1 {
			t.Errorf("handoffs = %d, want 1", len(hs.h.got))
		}
	})

	t.Run("fatal", func(t *testing.T) {
		t.Parallel()
		hs := newHarness(t, 15*rate)
		hs.h.Err = errors.Join(errors.New("tts"), fatalErr{})
		err := wakeAndFinish(t, hs)
		var fe fatalErr
		if !errors.As(err, &fe) {
			t.Fatalf("err = %v, want the fatal handler error", err)
		}
	})
}

func TestSetTiming_AppliedOnNextTick(t *testing.T) {
	t.Parallel()

	hs := newHarness(t, 15*rate)
	hs.buf.OverwriteSlice(make([]audio.Sample, rate))
	hs.l.SetTiming(segment.Timing{
		EndSilence:       50 * time.Millisecond,
		MinUtterance:     100 * time.Millisecond,
		DetectionLatency: 0,
	})
	hs.wake.FireOnCall = 1
	hs.wake.Result = &wakeword.Detection{Name: "computer"}

	hs.ticks(t, 20)
	if len(hs.h.got) != 1 {
		t.Fatalf("handoffs = %d, want 1 with shortened timing", len(hs.h.got))
	}
	// detection at tick 1, finalize at tick 12: 110 ms, no pre-roll.
	if got := hs.h.got[0].SpokenFor; got != 110*time.Millisecond {
		t.Errorf("SpokenFor = %v, want 110ms", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	hs := newHarness(t, 15*rate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hs.l.Run(ctx); err != nil {
		t.Errorf("Run = %v, want nil on cancellation", err)
	}
}

func TestRun_ReturnsFatalHandlerError(t *testing.T) {
	t.Parallel()

	buf := audio.NewRingBuffer(15 * rate)
	buf.OverwriteSlice(make([]audio.Sample, rate))
	m := segment.NewMachine(segment.Timing{
		EndSilence:   time.Millisecond,
		MinUtterance: time.Millisecond,
	})
	l, err := listener.New(buf,
		segment.NewVoiceGate(&vadmock.Classifier{}, 160),
		segment.NewWakeGate(&wakemock.Detector{FireOnCall: 1, Result: &wakeword.Detection{Name: "computer"}}),
		m,
		listener.HandlerFunc(func(context.Context, segment.Utterance) error { return fatalErr{} }),
		listener.WithPollInterval(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = l.Run(ctx)
	var fe fatalErr
	if !errors.As(err, &fe) {
		t.Fatalf("Run = %v, want fatal handler error", err)
	}
	if l.Utterances() != 1 {
		t.Errorf("Utterances = %d, want 1", l.Utterances())
	}
}
