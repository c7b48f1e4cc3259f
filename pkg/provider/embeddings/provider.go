// Package embeddings defines the Provider interface for text embedding
// backends used to recall earlier conversation turns by meaning.
//
// Stored turns are embedded as [Document] and search phrases as [Query]; some
// retrieval models expect different prefixes for the two and backends that
// do not care ignore the distinction.
package embeddings

import (
	"context"
	"math"
)

// Kind tells a provider which side of a retrieval pair a text is on.
type Kind int

const (
	// Document is a stored turn.
	Document Kind = iota
	// Query is a search phrase matched against stored turns.
	Query
)

// String returns "document" or "query".
func (k Kind) String() string {
	if k == Query {
		return "query"
	}
	return "document"
}

// Provider maps text to a dense vector.
//
// All vectors returned by one Provider have length Dimensions. Implementations
// must be safe for concurrent use.
type Provider interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string, kind Kind) ([]float32, error)

	// Dimensions returns the vector length, or 0 when it is not yet known.
	Dimensions() int

	// ModelID identifies the model so vectors from different models are
	// never compared.
	ModelID() string
}

// Normalize scales vec to unit length in place and returns it. A zero vector
// is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
