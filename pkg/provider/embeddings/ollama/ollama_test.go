package ollama_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/grenouille/pkg/provider/embeddings"
	"github.com/MrWong99/grenouille/pkg/provider/embeddings/ollama"
)

// embedServer answers /api/embed with vec and records every input text.
type embedServer struct {
	*httptest.Server
	mu     sync.Mutex
	inputs []string
}

func newEmbedServer(t *testing.T, vec []float32) *embedServer {
	t.Helper()
	s := &embedServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.inputs = append(s.inputs, req.Input)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      req.Model,
			"embeddings": [][]float32{vec},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *embedServer) Inputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

func TestNew_EmptyModel(t *testing.T) {
	t.Parallel()
	if _, err := ollama.New("", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestEmbed_NormalisesVector(t *testing.T) {
	t.Parallel()
	srv := newEmbedServer(t, []float32{3, 4})
	p, err := ollama.New(srv.URL, "custom-embed")
	if err != nil {
		t.Fatal(err)
	}

	got, err := p.Embed(context.Background(), "turn on the lights", embeddings.Document)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := []float32{0.6, 0.8}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("vec[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEmbed_KnownModelPrefixes(t *testing.T) {
	t.Parallel()
	srv := newEmbedServer(t, []float32{1})
	p, err := ollama.New(srv.URL, "nomic-embed-text:latest")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := p.Embed(ctx, "lights", embeddings.Document); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Embed(ctx, "what about the lights", embeddings.Query); err != nil {
		t.Fatal(err)
	}

	got := srv.Inputs()
	want := []string{"search_document: lights", "search_query: what about the lights"}
	if len(got) != len(want) {
		t.Fatalf("inputs = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("input[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmbed_WithPrefixesOverrides(t *testing.T) {
	t.Parallel()
	srv := newEmbedServer(t, []float32{1})
	p, err := ollama.New(srv.URL, "nomic-embed-text", ollama.WithPrefixes("", "q: "))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Embed(context.Background(), "hi", embeddings.Query); err != nil {
		t.Fatal(err)
	}
	if got := srv.Inputs(); len(got) != 1 || got[0] != "q: hi" {
		t.Errorf("inputs = %q, want [q: hi]", got)
	}
}

func TestDimensions_KnownModels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"nomic-embed-text:latest", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			t.Parallel()
			// Unreachable server: no request may be made.
			p, err := ollama.New("http://127.0.0.1:19999", tc.model)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.Dimensions(); got != tc.want {
				t.Errorf("Dimensions() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDimensions_ProbesOnce(t *testing.T) {
	t.Parallel()
	srv := newEmbedServer(t, make([]float32, 512))
	p, err := ollama.New(srv.URL, "custom-embed")
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if got := p.Dimensions(); got != 512 {
			t.Errorf("call %d: Dimensions() = %d, want 512", i, got)
		}
	}
	if n := len(srv.Inputs()); n != 1 {
		t.Errorf("probe requests = %d, want 1", n)
	}
}

func TestDimensions_WithDimensions(t *testing.T) {
	t.Parallel()
	p, err := ollama.New("http://127.0.0.1:19999", "custom-embed", ollama.WithDimensions(256))
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Dimensions(); got != 256 {
		t.Errorf("Dimensions() = %d, want 256", got)
	}
}

func TestEmbed_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("not-json"))
		}},
		{"no vectors", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"model":"m","embeddings":[]}`))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			p, err := ollama.New(srv.URL, "nomic-embed-text")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := p.Embed(context.Background(), "hello", embeddings.Document); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEmbed_ContextCancelled(t *testing.T) {
	t.Parallel()
	stop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-stop:
		}
	}))
	defer srv.Close()
	defer close(stop)

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := p.Embed(ctx, "hello", embeddings.Query); err == nil {
		t.Fatal("expected cancellation error")
	}
}
