// Package vector stores embeddings with a payload and answers nearest-neighbour
// queries by cosine similarity.
package vector

import (
	"context"
	"math"
)

const (
	// DefaultCollection holds both ingested news and past user queries
	DefaultCollection = "news"
	// DefaultDimension matches the 768-dim embedding models we use
	DefaultDimension = 768
)

// Payload is the JSON document stored alongside a vector
type Payload map[string]any

// Text returns the text a point contributes as retrieval context. Points
// written by older clients carried the text under "query" or "message"
func (p Payload) Text() string {
	for _, key := range []string{"content", "query", "message"} {
		if s, ok := p[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Result is a single search hit
type Result struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Index is a vector collection with upsert and k-nearest-neighbour search
type Index interface {
	// EnsureCollection creates the collection if needed. Safe to call repeatedly
	EnsureCollection(ctx context.Context) error
	// Ping reports whether the collection is reachable without changing it
	Ping(ctx context.Context) error
	// Upsert stores vectors[i] with payloads[i] under fresh ids and returns the ids
	Upsert(ctx context.Context, vectors [][]float32, payloads []Payload) ([]string, error)
	// Search returns up to topK points ordered by descending similarity
	Search(ctx context.Context, vector []float32, topK int) ([]Result, error)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is empty, zero, or the lengths differ
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
