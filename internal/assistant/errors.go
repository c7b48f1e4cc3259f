package assistant

import "fmt"

// CollaboratorError is a recoverable failure of one pipeline stage ("stt" or
// "llm"). The utterance is dropped and listening continues.
type CollaboratorError struct {
	Stage string
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("assistant: %s failed: %v", e.Stage, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// FatalError is a failure the process cannot continue after, such as the
// speech synthesizer being unavailable.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("assistant: %s failed fatally: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal reports true. The listener stops on errors that do.
func (e *FatalError) Fatal() bool { return true }
