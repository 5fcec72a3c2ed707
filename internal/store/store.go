// Package store provides partition-scoped persistence for knowledge nodes
// with similarity search. Two implementations exist: MemoryStore (in-process,
// for tests and single-binary deployments) and QdrantStore (native gRPC).
//
// Every operation is scoped by a partition ID and fails closed: an empty
// partition ID is rejected before any backend call, and user-supplied filters
// may never reference the partition key.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/fablecraft/braind/internal/knowledge"
)

var (
	// ErrMissingPartition indicates an operation without a partition ID.
	// Operations fail closed rather than falling back to a global scope.
	ErrMissingPartition = errors.New("partition ID required")

	// ErrReservedFilterKey indicates a user filter that references the
	// partition key. Callers cannot widen or redirect partition scope
	// through filters.
	ErrReservedFilterKey = errors.New("filter key is reserved for partition isolation")

	// ErrNodeNotFound indicates the requested node does not exist in the
	// given partition.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("store connection failed")

	// ErrInvalidCollectionName indicates a collection name failing validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// PartitionKey is the payload field that scopes every stored node.
const PartitionKey = "partition_id"

// ScoredNode is a node with its similarity score against a query vector.
type ScoredNode struct {
	Node  knowledge.Node `json:"node"`
	Score float32       `json:"score"`
}

// SimilarityQuery describes one vector search within a single partition.
type SimilarityQuery struct {
	// PartitionID scopes the search. Required.
	PartitionID string

	// Vector is the query embedding. Required.
	Vector []float32

	// Filters are exact-match payload filters (e.g. node type). May not
	// contain the partition key.
	Filters map[string]string

	// TopK caps the number of results.
	TopK int

	// Threshold drops results scoring below it. Zero means no threshold.
	Threshold float32

	// ExcludeIDs removes specific nodes from the result set server-side.
	ExcludeIDs []string
}

// Validate checks the query before any backend call.
func (q SimilarityQuery) Validate() error {
	if q.PartitionID == "" {
		return ErrMissingPartition
	}
	if len(q.Vector) == 0 {
		return errors.New("query vector required")
	}
	if q.TopK <= 0 {
		return errors.New("top_k must be positive")
	}
	return ValidateFilters(q.Filters)
}

// Store is the persistence interface for knowledge nodes. All methods are
// safe for concurrent use.
type Store interface {
	// CreateNodes persists a batch of nodes into a partition. Node IDs and
	// embeddings must already be assigned.
	CreateNodes(ctx context.Context, partitionID string, nodes []knowledge.Node) error

	// GetNode fetches one node by ID. Returns ErrNodeNotFound if the node
	// does not exist in the partition.
	GetNode(ctx context.Context, partitionID, id string) (knowledge.Node, error)

	// DeleteNode removes one node by ID. Returns ErrNodeNotFound if the
	// node does not exist in the partition.
	DeleteNode(ctx context.Context, partitionID, id string) error

	// QueryByPartition lists nodes in a partition matching exact-match
	// filters, up to limit. Results are ordered by node ID.
	QueryByPartition(ctx context.Context, partitionID string, filters map[string]string, limit int) ([]knowledge.Node, error)

	// SimilaritySearch runs a partition-scoped vector search. Results are
	// ordered by score descending, ties broken by node ID ascending.
	SimilaritySearch(ctx context.Context, query SimilarityQuery) ([]ScoredNode, error)

	// Close releases backend resources.
	Close() error
}

// ValidatePartition rejects empty partition IDs before any backend call.
func ValidatePartition(partitionID string) error {
	if partitionID == "" {
		return ErrMissingPartition
	}
	return nil
}

// ValidateFilters rejects user filters that reference the partition key.
func ValidateFilters(filters map[string]string) error {
	for key := range filters {
		if key == PartitionKey {
			return ErrReservedFilterKey
		}
	}
	return nil
}

// SortNodes orders nodes by ID ascending. Every Store implementation
// returns QueryByPartition results in this order so listings are
// deterministic across backends.
func SortNodes(nodes []knowledge.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

// SortScored orders results by score descending, ties broken by node ID
// ascending. Every Store implementation returns results in this order so
// searches are deterministic across backends.
func SortScored(results []ScoredNode) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Node.ID < results[j].Node.ID
	})
}
