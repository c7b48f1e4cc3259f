// Package history records the text of every handled utterance: the prompt,
// the assistant's reply and how long each stage took. Audio is never stored.
//
// Two [Store] implementations are provided: [MemStore], a bounded in-process
// log used by default, and [PostgresStore] for a durable log shared across
// restarts.
package history

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Outcome values recorded on a [Turn].
const (
	OutcomeAnswered = "answered"
	OutcomeUnclear  = "unclear"
	OutcomeIgnored  = "ignored"
	OutcomeFailed   = "failed"
)

// Turn is one handled utterance.
type Turn struct {
	// At is when the utterance was finalized.
	At time.Time

	// Prompt is the cleaned transcript. Empty when nothing was recognized.
	Prompt string

	// Reply is the raw assistant reply, empty when the LLM was not asked.
	Reply string

	// ReplyType is the parsed reply type ("response", "python", "unclear") or
	// empty.
	ReplyType string

	// Outcome is one of the Outcome constants.
	Outcome string

	// Error describes a failed stage, if any.
	Error string

	SpokenFor   time.Duration
	STTDuration time.Duration
	LLMDuration time.Duration
	TTSDuration time.Duration

	// Truncated is set when the utterance was longer than the buffer window.
	Truncated bool
}

// Store persists turns. Implementations must be safe for concurrent use.
type Store interface {
	// Append records t.
	Append(ctx context.Context, t Turn) error

	// Recent returns up to n of the newest turns, oldest first.
	Recent(ctx context.Context, n int) ([]Turn, error)

	// Search returns turns whose prompt or reply contains query, oldest first,
	// at most limit when limit > 0.
	Search(ctx context.Context, query string, limit int) ([]Turn, error)
}

// DefaultMemCapacity bounds a [MemStore] created with a non-positive capacity.
const DefaultMemCapacity = 1000

// MemStore keeps the most recent turns in memory.
type MemStore struct {
	mu    sync.Mutex
	turns []Turn
	cap   int
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a store holding at most capacity turns.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMemCapacity
	}
	return &MemStore{cap: capacity}
}

// Append implements [Store]. The oldest turn is dropped when full.
func (s *MemStore) Append(_ context.Context, t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == s.cap {
		copy(s.turns, s.turns[1:])
		s.turns = s.turns[:len(s.turns)-1]
	}
	s.turns = append(s.turns, t)
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, n int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.turns) {
		n = len(s.turns)
	}
	return append([]Turn{}, s.turns[len(s.turns)-n:]...), nil
}

// Search implements [Store] with a case-insensitive substring match.
func (s *MemStore) Search(_ context.Context, query string, limit int) ([]Turn, error) {
	q := strings.ToLower(query)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Turn{}
	for _, t := range s.turns {
		if strings.Contains(strings.ToLower(t.Prompt), q) || strings.Contains(strings.ToLower(t.Reply), q) {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Len returns the number of stored turns.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
