// Package chat keeps the running conversation between the user and the
// assistant and completes it through an [llm.Provider].
//
// A [Session] is seeded once with a system prompt that asks the model to
// answer in a small JSON format (see [Response]), a primer assistant turn and
// a one-shot example of an unclear request. Every addressed prompt is pushed
// as a JSON user turn and the model's reply is appended to the history.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/grenouille/pkg/provider/llm"
)

// ErrEmptyReply is returned by Complete when the model answered with no text.
var ErrEmptyReply = errors.New("chat: empty completion")

// Session is a conversation history bound to an LLM provider. It is safe for
// concurrent use, although the assistant only drives it from one goroutine.
type Session struct {
	provider llm.Provider

	temperature float64
	maxTokens   int
	jsonMode    bool
	maxContext  int
	seed        Seed

	mu       sync.Mutex
	messages []llm.Message
	seedLen  int
	tokens   int
	usage    llm.Usage
}

// Option configures a [Session].
type Option func(*Session)

// WithSeed replaces the default seed conversation.
func WithSeed(s Seed) Option {
	return func(c *Session) { c.seed = s }
}

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) Option {
	return func(c *Session) { c.temperature = t }
}

// WithMaxTokens caps each completion.
func WithMaxTokens(n int) Option {
	return func(c *Session) { c.maxTokens = n }
}

// WithJSONMode asks providers that support it to return a single JSON object.
func WithJSONMode(on bool) Option {
	return func(c *Session) { c.jsonMode = on }
}

// WithMaxContextTokens bounds the history sent to the model. When the
// provider's token estimate exceeds n, the oldest turns after the seed are
// dropped until it fits. Zero uses the provider's context window minus the
// completion budget; negative disables trimming.
func WithMaxContextTokens(n int) Option {
	return func(c *Session) { c.maxContext = n }
}

// NewSession creates a session completing through p and seeds it.
func NewSession(p llm.Provider, opts ...Option) (*Session, error) {
	if p == nil {
		return nil, errors.New("chat: provider is required")
	}
	s := &Session{
		provider: p,
		jsonMode: true,
		seed:     DefaultSeed(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.maxContext == 0 {
		caps := p.Capabilities()
		s.maxContext = caps.ContextWindow - max(s.maxTokens, caps.MaxOutputTokens)
	}
	if err := s.applySeed(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) applySeed() error {
	if s.seed.SystemPrompt != "" {
		s.PushSystem(s.seed.SystemPrompt)
	}
	if s.seed.Primer != "" {
		s.PushAssistant(s.seed.Primer)
	}
	for _, ex := range s.seed.Examples {
		if err := s.PushUserPrompt(ex.Prompt); err != nil {
			return err
		}
		s.PushAssistant(ex.Reply)
	}
	s.seedLen = len(s.messages)
	return nil
}

// PushSystem appends a system message.
func (s *Session) PushSystem(content string) { s.push(llm.RoleSystem, content) }

// PushAssistant appends an assistant message.
func (s *Session) PushAssistant(content string) { s.push(llm.RoleAssistant, content) }

// PushUser appends a raw user message.
func (s *Session) PushUser(content string) { s.push(llm.RoleUser, content) }

// PushUserPrompt appends prompt wrapped as {"type":"user","content":prompt}.
func (s *Session) PushUserPrompt(prompt string) error {
	b, err := json.Marshal(userTurn{Type: "user", Content: prompt})
	if err != nil {
		return fmt.Errorf("chat: encode user turn: %w", err)
	}
	s.PushUser(string(b))
	return nil
}

type userTurn struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (s *Session) push(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, llm.Message{Role: role, Content: content})
}

// Complete sends the history to the model, appends the reply as an assistant
// message and returns it. The lock is not held during the call.
func (s *Session) Complete(ctx context.Context) (llm.Message, error) {
	msgs, err := s.window()
	if err != nil {
		return llm.Message{}, err
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		JSON:        s.jsonMode,
	})
	if err != nil {
		return llm.Message{}, fmt.Errorf("chat: complete: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return llm.Message{}, ErrEmptyReply
	}

	used := resp.Usage
	if used.TotalTokens == 0 {
		used.TotalTokens = used.PromptTokens + used.CompletionTokens
	}
	reply := llm.Message{Role: llm.RoleAssistant, Content: resp.Content}

	s.mu.Lock()
	s.messages = append(s.messages, reply)
	s.tokens += used.TotalTokens
	s.usage.PromptTokens += used.PromptTokens
	s.usage.CompletionTokens += used.CompletionTokens
	s.usage.TotalTokens += used.TotalTokens
	s.mu.Unlock()

	slog.Debug("chat: completion", "model", resp.Model, "tokens", used.TotalTokens, "history", len(msgs)+1)
	return reply, nil
}

// window trims the oldest non-seed turns until the history fits the context
// budget and returns a copy of it.
func (s *Session) window() ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxContext > 0 {
		dropped := 0
		for len(s.messages)-s.seedLen > 1 {
			n, err := s.provider.CountTokens(s.messages)
			if err != nil {
				return nil, fmt.Errorf("chat: count tokens: %w", err)
			}
			if n <= s.maxContext {
				break
			}
			s.messages = append(s.messages[:s.seedLen], s.messages[s.seedLen+1:]...)
			dropped++
		}
		if dropped > 0 {
			slog.Info("chat: trimmed history to fit context", "dropped", dropped, "remaining", len(s.messages))
		}
	}
	return append([]llm.Message(nil), s.messages...), nil
}

// Last returns the most recent message.
func (s *Session) Last() (llm.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return llm.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Messages returns a copy of the history.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.messages...)
}

// Len returns the number of messages, seed included.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Tokens returns the total tokens reported across all completions.
func (s *Session) Tokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Usage returns the accumulated usage split by prompt and completion.
func (s *Session) Usage() llm.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Reset drops every turn after the seed.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:s.seedLen]
}

// Pop removes and returns the most recent turn. The seed is never popped.
func (s *Session) Pop() (llm.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) <= s.seedLen {
		return llm.Message{}, false
	}
	m := s.messages[len(s.messages)-1]
	s.messages = s.messages[:len(s.messages)-1]
	return m, true
}
