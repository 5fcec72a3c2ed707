// Package embeddings provides embedding generation via multiple providers.
//
// Two providers are supported: an OpenAI-compatible HTTP provider (covers
// OpenAI, TEI, and Jina-style gateways) backed by langchaingo, and a local
// ONNX provider backed by FastEmbed (requires CGO). Both are created through
// NewProvider and can be wrapped with Instrument for otel metrics.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings from text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one vector per
	// input, all with the same dimension.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize queries differently from documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder with lifecycle and model metadata.
type Provider interface {
	Embedder

	// Model returns the embedding model name.
	Model() string

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
