package store

import (
	"context"
	"math"
	"sync"

	"github.com/fablecraft/braind/internal/knowledge"
)

// MemoryStore is an in-process Store backed by maps. It brute-forces cosine
// similarity over a partition, which is fine for tests and small single-user
// deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]knowledge.Node
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		partitions: make(map[string]map[string]knowledge.Node),
	}
}

// CreateNodes persists a batch of nodes into a partition.
func (s *MemoryStore) CreateNodes(ctx context.Context, partitionID string, nodes []knowledge.Node) error {
	if err := ValidatePartition(partitionID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.partitions[partitionID]
	if !ok {
		part = make(map[string]knowledge.Node)
		s.partitions[partitionID] = part
	}
	for _, node := range nodes {
		node.PartitionID = partitionID
		part[node.ID] = node
	}
	return nil
}

// GetNode fetches one node by ID.
func (s *MemoryStore) GetNode(ctx context.Context, partitionID, id string) (knowledge.Node, error) {
	if err := ValidatePartition(partitionID); err != nil {
		return knowledge.Node{}, err
	}
	if err := ctx.Err(); err != nil {
		return knowledge.Node{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.partitions[partitionID][id]
	if !ok {
		return knowledge.Node{}, ErrNodeNotFound
	}
	return node, nil
}

// Neighbors returns the nodes a node points at through its outgoing
// relationships, in relationship order. Dangling targets are skipped.
// MemoryStore only; the Store interface does not require neighborhood reads.
func (s *MemoryStore) Neighbors(ctx context.Context, partitionID, id string) ([]knowledge.Node, error) {
	node, err := s.GetNode(ctx, partitionID, id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	part := s.partitions[partitionID]
	neighbors := make([]knowledge.Node, 0, len(node.Relationships))
	for _, rel := range node.Relationships {
		if target, ok := part[rel.TargetID]; ok {
			neighbors = append(neighbors, target)
		}
	}
	return neighbors, nil
}

// DeleteNode removes one node by ID.
func (s *MemoryStore) DeleteNode(ctx context.Context, partitionID, id string) error {
	if err := ValidatePartition(partitionID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.partitions[partitionID]
	if !ok {
		return ErrNodeNotFound
	}
	if _, ok := part[id]; !ok {
		return ErrNodeNotFound
	}
	delete(part, id)
	return nil
}

// QueryByPartition lists nodes matching exact-match filters, ordered by ID.
func (s *MemoryStore) QueryByPartition(ctx context.Context, partitionID string, filters map[string]string, limit int) ([]knowledge.Node, error) {
	if err := ValidatePartition(partitionID); err != nil {
		return nil, err
	}
	if err := ValidateFilters(filters); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []knowledge.Node
	for _, node := range s.partitions[partitionID] {
		if matchesFilters(node, filters) {
			nodes = append(nodes, node)
		}
	}

	SortNodes(nodes)

	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

// SimilaritySearch brute-forces cosine similarity over the partition.
func (s *MemoryStore) SimilaritySearch(ctx context.Context, query SimilarityQuery) ([]ScoredNode, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(query.ExcludeIDs))
	for _, id := range query.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []ScoredNode
	for _, node := range s.partitions[query.PartitionID] {
		if _, skip := excluded[node.ID]; skip {
			continue
		}
		if !matchesFilters(node, query.Filters) {
			continue
		}
		score := CosineSimilarity(query.Vector, node.Embedding)
		if query.Threshold > 0 && score < query.Threshold {
			continue
		}
		results = append(results, ScoredNode{Node: node, Score: score})
	}

	SortScored(results)

	if len(results) > query.TopK {
		results = results[:query.TopK]
	}
	return results, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// matchesFilters checks exact-match filters against node fields. The key
// "node_type" matches Node.Type; other keys match string properties.
func matchesFilters(node knowledge.Node, filters map[string]string) bool {
	for key, want := range filters {
		if key == "node_type" {
			if node.Type != want {
				return false
			}
			continue
		}
		val, ok := node.Properties[key]
		if !ok {
			return false
		}
		got, ok := val.StringValue()
		if !ok || got != want {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ Store = (*MemoryStore)(nil)
