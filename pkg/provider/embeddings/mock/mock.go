// Package mock provides a test double for embeddings.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/grenouille/pkg/provider/embeddings"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	Text string
	Kind embeddings.Kind
}

// Provider is a mock embeddings.Provider. Embed returns Vectors[text] when
// present and EmbedResult otherwise.
type Provider struct {
	mu sync.Mutex

	EmbedResult     []float32
	Vectors         map[string][]float32
	EmbedErr        error
	DimensionsValue int
	ModelIDValue    string

	EmbedCalls []EmbedCall
}

var _ embeddings.Provider = (*Provider)(nil)

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string, kind embeddings.Kind) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text, Kind: kind})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if v, ok := p.Vectors[text]; ok {
		return v, nil
	}
	return p.EmbedResult, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.ModelIDValue }

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []EmbedCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EmbedCall, len(p.EmbedCalls))
	copy(out, p.EmbedCalls)
	return out
}
