package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fablecraft/braind/internal/knowledge"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("braind.store.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Reserved payload keys. Node properties with these names are not flattened
// into the payload root.
var reservedPayloadKeys = map[string]struct{}{
	"id":            {},
	"content":       {},
	"node_type":     {},
	PartitionKey:    {},
	"created_at":    {},
	"properties":    {},
	"relationships": {},
}

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port (6333).
	Port int

	// CollectionName is the collection holding all partitions. Partition
	// isolation is enforced through payload filters, not collections.
	CollectionName string

	// VectorSize is the embedding dimensionality. Must match the embedding
	// provider's output.
	VectorSize uint64

	// Distance is the similarity metric. Default: Cosine.
	Distance qdrant.Distance

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry limit for transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry. Default: 1s.
	RetryBackoff time.Duration

	// MaxMessageSize is the gRPC message size limit in bytes. Default: 50MB.
	MaxMessageSize int

	// CircuitBreakerThreshold is the failure count that opens the circuit.
	// Default: 5.
	CircuitBreakerThreshold int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
}

// ValidateCollectionName validates a collection name against security rules.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability,
// false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// Native gRPC transport (port 6334) bypasses Qdrant's HTTP layer and its
// 256kB payload limit, so large node batches upsert in one call. Partition
// isolation is enforced through payload filters injected into every query.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig

	// collectionReady caches the existence check for the collection.
	collectionReady sync.Once
	collectionErr   error

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore creates a QdrantStore and verifies connectivity.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateCollectionName(config.CollectionName); err != nil {
		return nil, fmt.Errorf("validating collection name: %w", err)
	}

	if !config.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// healthCheck performs a health check on the Qdrant connection.
func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// ensureCollection creates the collection if it does not exist yet.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.collectionReady.Do(func() {
		var exists bool
		err := s.retryOperation(ctx, "collection_exists", func() error {
			info, err := s.client.GetCollectionInfo(ctx, s.config.CollectionName)
			if err != nil {
				st, ok := status.FromError(err)
				if ok && st.Code() == grpccodes.NotFound {
					exists = false
					return nil
				}
				return err
			}
			exists = info != nil
			return nil
		})
		if err != nil {
			s.collectionErr = fmt.Errorf("checking collection %s: %w", s.config.CollectionName, err)
			return
		}
		if exists {
			return
		}

		err = s.retryOperation(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.config.CollectionName,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.config.VectorSize,
					Distance: s.config.Distance,
				}),
			})
		})
		if err != nil {
			s.collectionErr = fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
		}
	})
	return s.collectionErr
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// CreateNodes upserts a batch of nodes into the partition.
func (s *QdrantStore) CreateNodes(ctx context.Context, partitionID string, nodes []knowledge.Node) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.CreateNodes")
	defer span.End()

	span.SetAttributes(
		attribute.Int("node_count", len(nodes)),
		attribute.String("partition_id", partitionID),
	)

	if err := ValidatePartition(partitionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("nodes cannot be empty")
	}
	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	points := make([]*qdrant.PointStruct, len(nodes))
	for i, node := range nodes {
		node.PartitionID = partitionID
		payload, err := nodeToPayload(node)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("encoding node %s: %w", node.ID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(node.ID),
			Vectors: qdrant.NewVectors(node.Embedding...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting nodes: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// GetNode fetches one node by ID within the partition.
func (s *QdrantStore) GetNode(ctx context.Context, partitionID, id string) (knowledge.Node, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.GetNode")
	defer span.End()

	span.SetAttributes(
		attribute.String("node_id", id),
		attribute.String("partition_id", partitionID),
	)

	if err := ValidatePartition(partitionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return knowledge.Node{}, err
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			keywordCondition(PartitionKey, partitionID),
			keywordCondition("id", id),
		},
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "get_node", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Limit:          qdrant.PtrOf(uint64(1)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return knowledge.Node{}, fmt.Errorf("fetching node %s: %w", id, err)
	}
	if len(results) == 0 {
		span.SetStatus(codes.Error, "not found")
		return knowledge.Node{}, ErrNodeNotFound
	}

	node, err := pointToNode(results[0])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return knowledge.Node{}, fmt.Errorf("decoding node %s: %w", id, err)
	}

	span.SetStatus(codes.Ok, "success")
	return node, nil
}

// DeleteNode removes one node by ID within the partition.
func (s *QdrantStore) DeleteNode(ctx context.Context, partitionID, id string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteNode")
	defer span.End()

	span.SetAttributes(
		attribute.String("node_id", id),
		attribute.String("partition_id", partitionID),
	)

	// Existence check first so missing nodes surface as ErrNodeNotFound
	// instead of a silent no-op delete.
	if _, err := s.GetNode(ctx, partitionID, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.CollectionName,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							keywordCondition(PartitionKey, partitionID),
							keywordCondition("id", id),
						},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting node %s: %w", id, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// QueryByPartition lists nodes matching exact-match filters, ordered by ID.
func (s *QdrantStore) QueryByPartition(ctx context.Context, partitionID string, filters map[string]string, limit int) ([]knowledge.Node, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.QueryByPartition")
	defer span.End()

	span.SetAttributes(
		attribute.String("partition_id", partitionID),
		attribute.Int("limit", limit),
	)

	if err := ValidatePartition(partitionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ValidateFilters(filters); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	conditions := []*qdrant.Condition{keywordCondition(PartitionKey, partitionID)}
	for key, value := range filters {
		conditions = append(conditions, keywordCondition(key, value))
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query_by_partition", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
			Filter:         &qdrant.Filter{Must: conditions},
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying partition %s: %w", partitionID, err)
	}

	nodes := make([]knowledge.Node, 0, len(results))
	for _, point := range results {
		node, err := pointToNode(point)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("decoding point: %w", err)
		}
		nodes = append(nodes, node)
	}

	// Qdrant returns points in backend order.
	SortNodes(nodes)

	span.SetAttributes(attribute.Int("node_count", len(nodes)))
	span.SetStatus(codes.Ok, "success")
	return nodes, nil
}

// SimilaritySearch runs a partition-scoped vector search. The threshold and
// ID exclusions are pushed down to Qdrant; results are re-sorted locally so
// ordering is identical across Store implementations.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, query SimilarityQuery) ([]ScoredNode, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.SimilaritySearch")
	defer span.End()

	span.SetAttributes(
		attribute.String("partition_id", query.PartitionID),
		attribute.Int("top_k", query.TopK),
		attribute.Float64("threshold", float64(query.Threshold)),
	)

	if err := query.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	conditions := []*qdrant.Condition{keywordCondition(PartitionKey, query.PartitionID)}
	for key, value := range query.Filters {
		conditions = append(conditions, keywordCondition(key, value))
	}

	filter := &qdrant.Filter{Must: conditions}
	if len(query.ExcludeIDs) > 0 {
		filter.MustNot = []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "id",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keywords{
								Keywords: &qdrant.RepeatedStrings{Strings: query.ExcludeIDs},
							},
						},
					},
				},
			},
		}
	}

	points := &qdrant.QueryPoints{
		CollectionName: s.config.CollectionName,
		Query:          qdrant.NewQuery(query.Vector...),
		Limit:          qdrant.PtrOf(uint64(query.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
		Filter:         filter,
	}
	if query.Threshold > 0 {
		points.ScoreThreshold = qdrant.PtrOf(query.Threshold)
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "similarity_search", func() error {
		res, err := s.client.Query(ctx, points)
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching partition %s: %w", query.PartitionID, err)
	}

	scored := make([]ScoredNode, 0, len(results))
	for _, point := range results {
		node, err := pointToNode(point)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("decoding point: %w", err)
		}
		scored = append(scored, ScoredNode{Node: node, Score: point.Score})
	}

	SortScored(scored)

	span.SetAttributes(attribute.Int("results_count", len(scored)))
	span.SetStatus(codes.Ok, "success")
	return scored, nil
}

// keywordCondition builds a field keyword-match condition.
func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// nodeToPayload encodes a node into a Qdrant payload. Structured fields are
// carried as JSON strings; string-valued properties are also flattened into
// the payload root so they can serve as filter targets.
func nodeToPayload(node knowledge.Node) (map[string]*qdrant.Value, error) {
	payload := map[string]*qdrant.Value{
		"id":         stringValue(node.ID),
		"content":    stringValue(node.Content),
		"node_type":  stringValue(node.Type),
		PartitionKey: stringValue(node.PartitionID),
		"created_at": stringValue(node.CreatedAt.UTC().Format(time.RFC3339Nano)),
	}

	if len(node.Properties) > 0 {
		raw, err := json.Marshal(node.Properties)
		if err != nil {
			return nil, fmt.Errorf("marshaling properties: %w", err)
		}
		payload["properties"] = stringValue(string(raw))

		for key, value := range node.Properties {
			if _, reserved := reservedPayloadKeys[key]; reserved {
				continue
			}
			if str, ok := value.StringValue(); ok {
				payload[key] = stringValue(str)
			}
		}
	}

	if len(node.Relationships) > 0 {
		raw, err := json.Marshal(node.Relationships)
		if err != nil {
			return nil, fmt.Errorf("marshaling relationships: %w", err)
		}
		payload["relationships"] = stringValue(string(raw))
	}

	return payload, nil
}

// pointToNode decodes a Qdrant point back into a node.
func pointToNode(point *qdrant.ScoredPoint) (knowledge.Node, error) {
	if point.Payload == nil {
		return knowledge.Node{}, fmt.Errorf("point has no payload")
	}

	node, err := payloadToNode(point.Payload)
	if err != nil {
		return knowledge.Node{}, err
	}

	if vectors := point.Vectors.GetVector(); vectors != nil {
		node.Embedding = vectors.Data
	}

	return node, nil
}

// payloadToNode decodes the payload fields of a stored node.
func payloadToNode(payload map[string]*qdrant.Value) (knowledge.Node, error) {
	var node knowledge.Node

	node.ID = payloadString(payload, "id")
	node.Content = payloadString(payload, "content")
	node.Type = payloadString(payload, "node_type")
	node.PartitionID = payloadString(payload, PartitionKey)

	if ts := payloadString(payload, "created_at"); ts != "" {
		created, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return node, fmt.Errorf("parsing created_at: %w", err)
		}
		node.CreatedAt = created
	}

	if raw := payloadString(payload, "properties"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &node.Properties); err != nil {
			return node, fmt.Errorf("unmarshaling properties: %w", err)
		}
	}

	if raw := payloadString(payload, "relationships"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &node.Relationships); err != nil {
			return node, fmt.Errorf("unmarshaling relationships: %w", err)
		}
	}

	return node, nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return s.StringValue
		}
	}
	return ""
}

var _ Store = (*QdrantStore)(nil)
