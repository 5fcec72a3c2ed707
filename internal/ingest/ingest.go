// Package ingest coordinates batch node creation: content validation,
// bounded-parallel embedding, and bulk store writes, with per-item failure
// attribution so callers can retry precisely.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fablecraft/braind/internal/embeddings"
	"github.com/fablecraft/braind/internal/knowledge"
	"github.com/fablecraft/braind/internal/store"
)

var tracer = otel.Tracer("braind.ingest")

var (
	// ErrBatchEmpty indicates a batch with zero items.
	ErrBatchEmpty = errors.New("batch cannot be empty")

	// ErrBatchTooLarge indicates a batch over the size limit. The batch is
	// rejected whole, never truncated.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)

// Failure stages. Embedding failures can be retried by re-submitting the
// item; store-write failures can be retried without re-embedding.
const (
	StageEmbedding  = "embedding"
	StageStoreWrite = "store_write"
)

// Failure kinds distinguish a dependency that timed out from one that
// answered with an error.
const (
	KindDependencyTimeout = "dependency_timeout"
	KindDependencyError   = "dependency_error"
)

// Config holds ingestion tuning parameters.
type Config struct {
	// MaxBatchSize is the hard per-call item limit. Default: 50.
	MaxBatchSize int

	// MaxConcurrent bounds parallel embedding calls. Default: 5.
	MaxConcurrent int

	// EmbedTimeout is the per-item embedding deadline. Default: 10s.
	EmbedTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 50
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 5
	}
	if c.EmbedTimeout == 0 {
		c.EmbedTimeout = 10 * time.Second
	}
}

// ValidationFailure pinpoints one rejected batch item.
type ValidationFailure struct {
	Index  int
	Reason string
}

// ValidationError rejects a whole batch. It is returned before any embedder
// or store call is made: a batch with one bad item creates nothing.
type ValidationError struct {
	Failures []ValidationFailure
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("item %d: %s", f.Index, f.Reason)
	}
	return "batch validation failed: " + strings.Join(parts, "; ")
}

// ItemResult is the per-item outcome of a batch, in input order.
type ItemResult struct {
	// Index is the item's position in the input batch.
	Index int `json:"index"`

	// ID is the assigned node ID. Set only on success.
	ID string `json:"id,omitempty"`

	// Properties echoes the input properties. Set only on success.
	Properties knowledge.Properties `json:"properties,omitempty"`

	// Created reports whether the node was persisted.
	Created bool `json:"created"`

	// Stage names the failed phase (embedding or store_write).
	Stage string `json:"stage,omitempty"`

	// Kind classifies the failure (dependency_timeout or dependency_error).
	Kind string `json:"kind,omitempty"`

	// Message is the failure detail.
	Message string `json:"message,omitempty"`
}

// BatchResult is the outcome of one CreateBatch call.
type BatchResult struct {
	// Success is true only when every item was created.
	Success bool `json:"success"`

	// Items holds per-item outcomes in input order.
	Items []ItemResult `json:"items"`

	// CreatedCount and FailedCount summarize Items.
	CreatedCount int `json:"created_count"`
	FailedCount  int `json:"failed_count"`

	// EmbedDuration is the wall time of the embedding fan-out,
	// StoreDuration the bulk write, TotalDuration the whole call.
	// Embedding latency dominates in practice and is tuned separately
	// from store latency.
	EmbedDuration time.Duration `json:"embed_duration"`
	StoreDuration time.Duration `json:"store_duration"`
	TotalDuration time.Duration `json:"total_duration"`

	// EmbeddingModel and EmbeddingDimension echo the provider used.
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// Coordinator runs the ingestion pipeline. Failures are surfaced with
// precise per-item attribution and never retried here; retries are the
// caller's decision.
type Coordinator struct {
	store     store.Store
	embedder  embeddings.Provider
	validator *knowledge.Validator
	config    Config
	logger    *zap.Logger
}

// NewCoordinator creates an ingestion coordinator. A nil validator uses the
// default deny-list; a nil logger discards logs.
func NewCoordinator(st store.Store, embedder embeddings.Provider, validator *knowledge.Validator, config Config, logger *zap.Logger) *Coordinator {
	config.ApplyDefaults()
	if validator == nil {
		validator = knowledge.NewValidator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     st,
		embedder:  embedder,
		validator: validator,
		config:    config,
		logger:    logger,
	}
}

// embedOutcome carries one item's embedding result out of the fan-out.
type embedOutcome struct {
	index  int
	vector []float32
	err    error
}

// CreateBatch validates, embeds, and persists a batch of node inputs.
//
// All items are validated before any external call; a single invalid item
// rejects the whole batch with a *ValidationError. Past validation, items
// fail independently: one item's embedding timeout or the bulk write
// failing never aborts the others' progress.
func (c *Coordinator) CreateBatch(ctx context.Context, partitionID string, items []knowledge.NodeInput) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.CreateBatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("partition_id", partitionID),
		attribute.Int("batch_size", len(items)),
	)

	if err := store.ValidatePartition(partitionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(items) == 0 {
		span.SetStatus(codes.Error, "empty batch")
		return nil, ErrBatchEmpty
	}
	if len(items) > c.config.MaxBatchSize {
		err := fmt.Errorf("%w: got %d items, max %d", ErrBatchTooLarge, len(items), c.config.MaxBatchSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Validation pass over the whole batch, before any embedder or store
	// call. First failure per item wins; all failing indices are reported.
	var failures []ValidationFailure
	for i, item := range items {
		if err := item.Validate(); err != nil {
			failures = append(failures, ValidationFailure{Index: i, Reason: err.Error()})
			continue
		}
		if result := c.validator.ValidateContent(item.Content); !result.OK {
			failures = append(failures, ValidationFailure{Index: i, Reason: result.Reason})
		}
	}
	if len(failures) > 0 {
		err := &ValidationError{Failures: failures}
		c.logger.Warn("batch rejected by validation",
			zap.String("partition_id", partitionID),
			zap.Int("batch_size", len(items)),
			zap.Int("invalid_items", len(failures)),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	totalStart := time.Now()

	// Embedding fan-out, bounded by a channel semaphore. Each item gets
	// its own deadline so one hung call cannot stall the batch.
	embedStart := time.Now()
	sem := make(chan struct{}, c.config.MaxConcurrent)
	outcomes := make(chan embedOutcome, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(index int, content string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes <- embedOutcome{index: index, err: ctx.Err()}
				return
			}

			embedCtx, cancel := context.WithTimeout(ctx, c.config.EmbedTimeout)
			defer cancel()

			vectors, err := c.embedder.EmbedDocuments(embedCtx, []string{content})
			if err != nil {
				outcomes <- embedOutcome{index: index, err: err}
				return
			}
			if len(vectors) == 0 {
				outcomes <- embedOutcome{index: index, err: embeddings.ErrEmbeddingFailed}
				return
			}
			outcomes <- embedOutcome{index: index, vector: vectors[0]}
		}(i, item.Content)
	}

	wg.Wait()
	close(outcomes)
	embedDuration := time.Since(embedStart)

	results := make([]ItemResult, len(items))
	var nodes []knowledge.Node
	nodeIndex := make(map[string]int) // node ID -> item index

	for outcome := range outcomes {
		item := items[outcome.index]
		if outcome.err != nil {
			results[outcome.index] = ItemResult{
				Index:   outcome.index,
				Stage:   StageEmbedding,
				Kind:    classifyKind(outcome.err),
				Message: outcome.err.Error(),
			}
			continue
		}

		node := knowledge.Node{
			ID:            uuid.NewString(),
			Type:          item.Type,
			PartitionID:   partitionID,
			Content:       item.Content,
			Embedding:     outcome.vector,
			Properties:    item.Properties,
			Relationships: item.Relationships,
			CreatedAt:     time.Now().UTC(),
		}
		nodes = append(nodes, node)
		nodeIndex[node.ID] = outcome.index
		results[outcome.index] = ItemResult{
			Index:      outcome.index,
			ID:         node.ID,
			Properties: item.Properties,
			Created:    true,
		}
	}

	// Bulk write for everything that embedded. A store failure is
	// attributed to the store_write stage on exactly those items, so the
	// caller can retry them without re-embedding.
	var storeDuration time.Duration
	if len(nodes) > 0 {
		sort.Slice(nodes, func(i, j int) bool { return nodeIndex[nodes[i].ID] < nodeIndex[nodes[j].ID] })

		storeStart := time.Now()
		err := c.store.CreateNodes(ctx, partitionID, nodes)
		storeDuration = time.Since(storeStart)

		if err != nil {
			kind := classifyKind(err)
			for _, node := range nodes {
				idx := nodeIndex[node.ID]
				results[idx] = ItemResult{
					Index:   idx,
					Stage:   StageStoreWrite,
					Kind:    kind,
					Message: err.Error(),
				}
			}
			span.RecordError(err)
		}
	}

	result := &BatchResult{
		Items:              results,
		EmbedDuration:      embedDuration,
		StoreDuration:      storeDuration,
		TotalDuration:      time.Since(totalStart),
		EmbeddingModel:     c.embedder.Model(),
		EmbeddingDimension: c.embedder.Dimension(),
	}
	for _, item := range result.Items {
		if item.Created {
			result.CreatedCount++
		} else {
			result.FailedCount++
		}
	}
	result.Success = result.FailedCount == 0

	c.logger.Info("batch ingested",
		zap.String("partition_id", partitionID),
		zap.Int("created", result.CreatedCount),
		zap.Int("failed", result.FailedCount),
		zap.Duration("embed_duration", result.EmbedDuration),
		zap.Duration("store_duration", result.StoreDuration),
	)

	span.SetAttributes(
		attribute.Int("created_count", result.CreatedCount),
		attribute.Int("failed_count", result.FailedCount),
	)
	if result.Success {
		span.SetStatus(codes.Ok, "success")
	} else {
		span.SetStatus(codes.Error, "partial failure")
	}
	return result, nil
}

// DeleteNode removes a node by ID. A missing node reports
// store.ErrNodeNotFound rather than succeeding silently.
func (c *Coordinator) DeleteNode(ctx context.Context, partitionID, id string) error {
	ctx, span := tracer.Start(ctx, "Coordinator.DeleteNode")
	defer span.End()

	span.SetAttributes(
		attribute.String("partition_id", partitionID),
		attribute.String("node_id", id),
	)

	if err := c.store.DeleteNode(ctx, partitionID, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.logger.Info("node deleted",
		zap.String("partition_id", partitionID),
		zap.String("node_id", id),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// CreateRelationships appends relationships to an existing node. The node's
// content and embedding are untouched.
func (c *Coordinator) CreateRelationships(ctx context.Context, partitionID, nodeID string, rels []knowledge.Relationship) error {
	ctx, span := tracer.Start(ctx, "Coordinator.CreateRelationships")
	defer span.End()

	span.SetAttributes(
		attribute.String("partition_id", partitionID),
		attribute.String("node_id", nodeID),
		attribute.Int("relationship_count", len(rels)),
	)

	if len(rels) == 0 {
		return errors.New("relationships cannot be empty")
	}
	for _, rel := range rels {
		if err := rel.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	node, err := c.store.GetNode(ctx, partitionID, nodeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	node.Relationships = append(node.Relationships, rels...)
	if err := c.store.CreateNodes(ctx, partitionID, []knowledge.Node{node}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("updating node %s: %w", nodeID, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// classifyKind separates dependency timeouts from dependency errors, for
// both local context deadlines and gRPC deadline propagation.
func classifyKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindDependencyTimeout
	}
	if st, ok := status.FromError(err); ok && st.Code() == grpccodes.DeadlineExceeded {
		return KindDependencyTimeout
	}
	return KindDependencyError
}
