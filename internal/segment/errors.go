package segment

import "fmt"

// ClassifierError is a failure of the voice or wake-word classifier. The tick
// that produced it is skipped.
type ClassifierError struct {
	// Gate is "vad" or "wakeword".
	Gate string
	Err  error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("segment: %s classifier: %v", e.Gate, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// InvariantError reports a broken internal invariant, such as an unknown
// machine state or an empty buffer at finalization. It is fatal.
type InvariantError struct {
	Op  string
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("segment: invariant violated in %s: %v", e.Op, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }
