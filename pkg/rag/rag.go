// Package rag answers a conversational turn by retrieving similar prior text
// from a vector index and handing it to a generative model as context.
package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ethanbaker/ragchat/pkg/session"
	"github.com/ethanbaker/ragchat/pkg/vector"
)

var (
	// ErrTagEmbedding marks a turn aborted because no usable embedding came back
	ErrTagEmbedding = goerr.NewTag("embedding_failure")
	// ErrTagUpstream marks a vector index or generation failure
	ErrTagUpstream = goerr.NewTag("upstream_failure")
	// ErrTagStore marks a session or transcript write failure
	ErrTagStore = goerr.NewTag("store_failure")
)

const (
	DefaultTopK           = 5
	DefaultTimeout        = 60 * time.Second
	DefaultFallbackAnswer = "No response from the model."
)

// Embedder turns text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ArticleExtractor fetches a page and returns its readable text
type ArticleExtractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// TurnResult is the outcome of one conversational turn
type TurnResult struct {
	TurnID  string
	Answer  string
	Sources []vector.Result
}

// Orchestrator coordinates embedding, retrieval, generation and persistence
// for a single turn. It holds no per-turn state and is safe for concurrent use
type Orchestrator struct {
	embedder  Embedder
	index     vector.Index
	generator Generator
	sessions  session.Store
	extractor ArticleExtractor
	logger    *slog.Logger

	topK              int
	dimension         int
	indexBeforeSearch bool
	timeout           time.Duration
	fallback          string
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTopK sets how many neighbours are retrieved as context
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithIndexBeforeSearch controls whether the query is indexed before the
// search (so it can retrieve itself) or after it
func WithIndexBeforeSearch(before bool) Option {
	return func(o *Orchestrator) {
		o.indexBeforeSearch = before
	}
}

// WithTimeout bounds every upstream call. Zero disables the bound
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// WithDimension rejects embeddings whose length differs from dim
func WithDimension(dim int) Option {
	return func(o *Orchestrator) {
		o.dimension = dim
	}
}

// WithArticleExtractor enables fetching of URLs mentioned in a query
func WithArticleExtractor(extractor ArticleExtractor) Option {
	return func(o *Orchestrator) {
		o.extractor = extractor
	}
}

// WithFallbackAnswer replaces the answer used when the model returns nothing
func WithFallbackAnswer(answer string) Option {
	return func(o *Orchestrator) {
		if answer != "" {
			o.fallback = answer
		}
	}
}

// WithLogger sets the logger. Without one the logger in the turn's context is used
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator
func New(embedder Embedder, index vector.Index, generator Generator, sessions session.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		embedder:          embedder,
		index:             index,
		generator:         generator,
		sessions:          sessions,
		topK:              DefaultTopK,
		dimension:         vector.DefaultDimension,
		indexBeforeSearch: true,
		timeout:           DefaultTimeout,
		fallback:          DefaultFallbackAnswer,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}
