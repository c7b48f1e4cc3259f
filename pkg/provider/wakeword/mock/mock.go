// Package mock provides a test double for the wakeword.Detector interface.
//
// Example:
//
//	d := &mock.Detector{FireOnCall: 3, Result: &wakeword.Detection{Name: "computer", Confidence: 0.6}}
package mock

import (
	"sync"

	"github.com/MrWong99/grenouille/pkg/provider/wakeword"
)

// Ensure Detector implements wakeword.Detector at compile time.
var _ wakeword.Detector = (*Detector)(nil)

// Detector is a mock implementation of wakeword.Detector.
type Detector struct {
	mu sync.Mutex

	// Result is returned by the call selected with FireOnCall, or by every
	// call when FireOnCall is zero.
	Result *wakeword.Detection

	// FireOnCall, if > 0, returns Result only on that (1-based) call and nil
	// on every other.
	FireOnCall int

	// Err, if non-nil, is returned by every Detect call.
	Err error

	// Length is returned by FrameLength. Defaults to 480.
	Length int

	// CallCount is the number of times Detect was called.
	CallCount int
}

// Detect records the call and returns the scripted detection.
func (d *Detector) Detect(frame []float32) (*wakeword.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCount++
	if d.Err != nil {
		return nil, d.Err
	}
	if d.FireOnCall > 0 && d.CallCount != d.FireOnCall {
		return nil, nil
	}
	return d.Result, nil
}

// FrameLength implements wakeword.Detector.
func (d *Detector) FrameLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Length == 0 {
		return wakeword.DefaultFrameLength
	}
	return d.Length
}

// Trigger arms the detector to fire on the next call. Thread-safe.
func (d *Detector) Trigger(det *wakeword.Detection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Result = det
	d.FireOnCall = d.CallCount + 1
}

// Calls returns the number of Detect calls so far. Thread-safe.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CallCount
}
