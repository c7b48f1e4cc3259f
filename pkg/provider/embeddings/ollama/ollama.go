// Package ollama provides an embeddings provider backed by a local Ollama
// server's /api/embed endpoint.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/grenouille/pkg/provider/embeddings"
)

// DefaultBaseURL is where a locally running Ollama listens.
const DefaultBaseURL = "http://localhost:11434"

// modelInfo describes what is known about a popular embedding model.
type modelInfo struct {
	dims          int
	documentAffix string
	queryAffix    string
}

var knownModels = map[string]modelInfo{
	"nomic-embed-text":  {dims: 768, documentAffix: "search_document: ", queryAffix: "search_query: "},
	"mxbai-embed-large": {dims: 1024, queryAffix: "Represent this sentence for searching relevant passages: "},
	"all-minilm":        {dims: 384},
	"bge-m3":            {dims: 1024},
}

func lookup(model string) modelInfo {
	name, _, _ := strings.Cut(strings.ToLower(model), ":")
	return knownModels[name]
}

// Provider implements embeddings.Provider using Ollama.
//
// Vectors are normalised to unit length. When the model's dimension is neither
// configured nor known, the first call to Dimensions embeds a probe text once
// and caches the result.
type Provider struct {
	client *api.Client
	model  string
	info   modelInfo

	mu   sync.Mutex
	dims int
}

var _ embeddings.Provider = (*Provider)(nil)

type options struct {
	timeout    time.Duration
	dimensions int
	document   *string
	query      *string
}

// Option configures a Provider.
type Option func(*options)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithDimensions sets the vector length and skips the probe request.
func WithDimensions(n int) Option {
	return func(o *options) { o.dimensions = n }
}

// WithPrefixes overrides the text prepended to documents and queries.
func WithPrefixes(document, query string) Option {
	return func(o *options) {
		o.document = &document
		o.query = &query
	}
}

// New returns a Provider for model on the server at baseURL, or at
// [DefaultBaseURL] when baseURL is empty.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: parse base url: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	info := lookup(model)
	if o.dimensions > 0 {
		info.dims = o.dimensions
	}
	if o.document != nil {
		info.documentAffix = *o.document
	}
	if o.query != nil {
		info.queryAffix = *o.query
	}

	return &Provider{
		client: api.NewClient(u, &http.Client{Timeout: o.timeout}),
		model:  model,
		info:   info,
		dims:   info.dims,
	}, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string, kind embeddings.Kind) ([]float32, error) {
	prefix := p.info.documentAffix
	if kind == embeddings.Query {
		prefix = p.info.queryAffix
	}
	vec, err := p.embed(ctx, prefix+text)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed %s: %w", kind, err)
	}
	return vec, nil
}

func (p *Provider) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty response")
	}
	return embeddings.Normalize(resp.Embeddings[0]), nil
}

// Dimensions implements embeddings.Provider. It returns 0 if the probe fails;
// the next call retries.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dims > 0 {
		return p.dims
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if vec, err := p.embed(ctx, "probe"); err == nil {
		p.dims = len(vec)
	}
	return p.dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }
