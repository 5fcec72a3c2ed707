// Package search exposes partition-scoped semantic search and duplicate
// detection over the knowledge store. Both operations share one vector
// search engine; duplicate detection adds a high default threshold and an
// exclusion list so a node never reports itself as a duplicate.
package search

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fablecraft/braind/internal/embeddings"
	"github.com/fablecraft/braind/internal/store"
)

var tracer = otel.Tracer("braind.search")

// ErrEmptyQuery indicates a search with neither query text nor a vector.
var ErrEmptyQuery = errors.New("query text or vector required")

// Config holds search defaults.
type Config struct {
	// DefaultTopK applies when a request leaves TopK zero. Default: 10.
	DefaultTopK int

	// MaxTopK caps any request's TopK. Default: 100.
	MaxTopK int

	// DuplicateThreshold is the minimum similarity for a duplicate match.
	// Default: 0.90.
	DuplicateThreshold float32

	// DuplicateLimit caps duplicate results. Default: 10.
	DuplicateLimit int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultTopK == 0 {
		c.DefaultTopK = 10
	}
	if c.MaxTopK == 0 {
		c.MaxTopK = 100
	}
	if c.DuplicateThreshold == 0 {
		c.DuplicateThreshold = 0.90
	}
	if c.DuplicateLimit == 0 {
		c.DuplicateLimit = 10
	}
}

// Request describes one semantic search. Either Query or Vector must be
// set; when Vector is set the embedding phase is skipped entirely.
type Request struct {
	PartitionID string
	Query       string
	Vector      []float32
	TopK        int
	Threshold   float32
	Filters     map[string]string
}

// DuplicateRequest describes one duplicate check for candidate content.
type DuplicateRequest struct {
	PartitionID string
	Content     string
	ExcludeIDs  []string
	// Threshold and Limit fall back to the configured duplicate defaults
	// when zero.
	Threshold float32
	Limit     int
}

// Result carries scored nodes plus the two independently tunable latency
// contributors. Scores pass through from the store unclamped; embeddings
// from one model score in [0,1] in practice.
type Result struct {
	Results        []store.ScoredNode `json:"results"`
	EmbedDuration  time.Duration      `json:"embed_duration"`
	SearchDuration time.Duration      `json:"search_duration"`
}

// Service runs searches against a store and an embedder.
type Service struct {
	store    store.Store
	embedder embeddings.Embedder
	config   Config
	logger   *zap.Logger
}

// NewService creates a search service. A nil logger discards logs.
func NewService(st store.Store, embedder embeddings.Embedder, config Config, logger *zap.Logger) *Service {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}
}

// Search runs a semantic search. Results are ordered by score descending,
// ties broken by node ID ascending; TopK bounds the result size and results
// below Threshold (when set) are dropped, never padded.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Service.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("partition_id", req.PartitionID),
		attribute.Int("top_k", req.TopK),
	)

	if err := store.ValidatePartition(req.PartitionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.Query == "" && len(req.Vector) == 0 {
		span.SetStatus(codes.Error, "empty query")
		return nil, ErrEmptyQuery
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}
	if topK > s.config.MaxTopK {
		topK = s.config.MaxTopK
	}

	result, err := s.searchByVector(ctx, vectorQuery{
		partitionID: req.PartitionID,
		query:       req.Query,
		vector:      req.Vector,
		topK:        topK,
		threshold:   req.Threshold,
		filters:     req.Filters,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(result.Results)))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// FindDuplicates checks candidate content against stored nodes. Results
// below the duplicate threshold are dropped entirely, and excluded IDs are
// filtered server-side.
func (s *Service) FindDuplicates(ctx context.Context, req DuplicateRequest) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Service.FindDuplicates")
	defer span.End()

	span.SetAttributes(
		attribute.String("partition_id", req.PartitionID),
		attribute.Int("exclude_count", len(req.ExcludeIDs)),
	)

	if err := store.ValidatePartition(req.PartitionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.Content == "" {
		span.SetStatus(codes.Error, "empty content")
		return nil, ErrEmptyQuery
	}

	threshold := req.Threshold
	if threshold == 0 {
		threshold = s.config.DuplicateThreshold
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.config.DuplicateLimit
	}

	result, err := s.searchByVector(ctx, vectorQuery{
		partitionID: req.PartitionID,
		query:       req.Content,
		topK:        limit,
		threshold:   threshold,
		excludeIDs:  req.ExcludeIDs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("duplicates_found", len(result.Results)))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// vectorQuery is the shared shape behind both public operations.
type vectorQuery struct {
	partitionID string
	query       string
	vector      []float32
	topK        int
	threshold   float32
	filters     map[string]string
	excludeIDs  []string
}

// searchByVector embeds the query text unless a vector was supplied, then
// delegates to the store. Embed and search time are measured separately.
func (s *Service) searchByVector(ctx context.Context, q vectorQuery) (*Result, error) {
	var embedDuration time.Duration

	vector := q.vector
	if len(vector) == 0 {
		embedStart := time.Now()
		embedded, err := s.embedder.EmbedQuery(ctx, q.query)
		embedDuration = time.Since(embedStart)
		if err != nil {
			return nil, err
		}
		vector = embedded
	}

	searchStart := time.Now()
	results, err := s.store.SimilaritySearch(ctx, store.SimilarityQuery{
		PartitionID: q.partitionID,
		Vector:      vector,
		Filters:     q.filters,
		TopK:        q.topK,
		Threshold:   q.threshold,
		ExcludeIDs:  q.excludeIDs,
	})
	searchDuration := time.Since(searchStart)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("vector search complete",
		zap.String("partition_id", q.partitionID),
		zap.Int("results", len(results)),
		zap.Duration("embed_duration", embedDuration),
		zap.Duration("search_duration", searchDuration),
	)

	return &Result{
		Results:        results,
		EmbedDuration:  embedDuration,
		SearchDuration: searchDuration,
	}, nil
}
