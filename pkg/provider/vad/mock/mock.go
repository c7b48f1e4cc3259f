// Package mock provides a test double for the vad.Classifier interface.
//
// Script a sequence of decisions with Results; once exhausted, Result is
// returned for every further frame.
//
// Example:
//
//	c := &mock.Classifier{Results: []bool{false, true, true}}
//	voice, _ := c.Classify(frame)
package mock

import (
	"sync"

	"github.com/MrWong99/grenouille/pkg/provider/vad"
)

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Results are returned one per call, in order.
	Results []bool

	// Result is returned once Results is exhausted.
	Result bool

	// Fn, if set, decides the result and takes precedence over Results.
	Fn func(frame []int16) bool

	// Err, if non-nil, is returned by every Classify call.
	Err error

	// --- Call records ---

	// FrameLengths records len(frame) for every call in order.
	FrameLengths []int

	// CallCount is the number of times Classify was called.
	CallCount int
}

// Classify records the call and returns the scripted result.
func (c *Classifier) Classify(frame []int16) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCount++
	c.FrameLengths = append(c.FrameLengths, len(frame))
	if c.Err != nil {
		return false, c.Err
	}
	if c.Fn != nil {
		return c.Fn(frame), nil
	}
	if len(c.Results) > 0 {
		r := c.Results[0]
		c.Results = c.Results[1:]
		return r, nil
	}
	return c.Result, nil
}

// Set replaces the steady-state result. Thread-safe.
func (c *Classifier) Set(voice bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Results = nil
	c.Result = voice
}

// Calls returns the number of Classify calls so far. Thread-safe.
func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCount
}
