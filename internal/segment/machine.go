package segment

import (
	"fmt"
	"time"

	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
)

// Transition describes the outcome of one Step.
type Transition struct {
	From State
	To   State

	// Detection is set when this step woke the machine.
	Detection *wakeword.Detection

	// Finalize is set when the utterance ended on this step.
	Finalize bool

	// SpokenFor is the utterance duration (now - speaking start), set with
	// Finalize.
	SpokenFor time.Duration
}

// Changed reports whether the state variant changed.
func (t Transition) Changed() bool {
	return t.From.String() != t.To.String()
}

// Machine is the utterance state machine.
type Machine struct {
	timing         Timing
	state          State
	speakingStart  time.Time
	detectionStart time.Time
}

// NewMachine returns a Silent machine using timing.
func NewMachine(timing Timing) *Machine {
	return &Machine{timing: timing, state: Silent{}}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Listening reports whether the machine waits for the wake word, i.e. whether
// the caller should run the wake-word detector on this tick.
func (m *Machine) Listening() bool {
	_, ok := m.state.(Silent)
	return ok
}

// Timing returns the active thresholds.
func (m *Machine) Timing() Timing { return m.timing }

// SetTiming replaces the thresholds. Takes effect on the next Step.
func (m *Machine) SetTiming(t Timing) { m.timing = t }

// Step advances the machine by one tick. voice is the classifier decision for
// the latest frame; det is the wake-word detection for this tick (only
// consulted while Silent).
func (m *Machine) Step(now time.Time, voice bool, det *wakeword.Detection) (Transition, error) {
	tr := Transition{From: m.state}

	switch s := m.state.(type) {
	case Silent:
		if det != nil {
			m.state = Speaking{}
			m.speakingStart = now.Add(-m.timing.DetectionLatency)
			m.detectionStart = now
			tr.Detection = det
		}
	case Speaking:
		if !voice {
			m.state = PendingEnd{SilenceStarted: now}
		}
	case PendingEnd:
		switch {
		case voice:
			m.state = Speaking{}
		case since(now, s.SilenceStarted) > m.timing.EndSilence &&
			since(now, m.detectionStart) > m.timing.MinUtterance:
			m.state = Silent{}
			tr.Finalize = true
			tr.SpokenFor = since(now, m.speakingStart)
		}
	default:
		return tr, &InvariantError{Op: "step", Err: fmt.Errorf("unknown state %T", m.state)}
	}

	tr.To = m.state
	return tr, nil
}

// Reset returns the machine to Silent.
func (m *Machine) Reset() {
	m.state = Silent{}
}
