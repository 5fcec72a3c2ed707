package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fablecraft/braind/internal/knowledge"
)

func TestQdrantConfig_Validate(t *testing.T) {
	valid := QdrantConfig{
		Host:           "localhost",
		Port:           6334,
		CollectionName: "braind_nodes",
		VectorSize:     384,
	}

	tests := []struct {
		name    string
		mutate  func(*QdrantConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*QdrantConfig) {}},
		{name: "missing host", mutate: func(c *QdrantConfig) { c.Host = "" }, wantErr: true},
		{name: "zero port", mutate: func(c *QdrantConfig) { c.Port = 0 }, wantErr: true},
		{name: "port too large", mutate: func(c *QdrantConfig) { c.Port = 70000 }, wantErr: true},
		{name: "missing collection", mutate: func(c *QdrantConfig) { c.CollectionName = "" }, wantErr: true},
		{name: "zero vector size", mutate: func(c *QdrantConfig) { c.VectorSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	cfg := QdrantConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid simple", input: "braind_nodes"},
		{name: "valid with numbers", input: "nodes_v2"},
		{name: "empty", input: "", wantErr: true},
		{name: "uppercase", input: "BraindNodes", wantErr: true},
		{name: "spaces", input: "braind nodes", wantErr: true},
		{name: "path traversal", input: "../etc/passwd", wantErr: true},
		{name: "too long", input: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: status.Error(grpccodes.Unavailable, "down"), want: true},
		{name: "deadline exceeded", err: status.Error(grpccodes.DeadlineExceeded, "timeout"), want: true},
		{name: "aborted", err: status.Error(grpccodes.Aborted, "aborted"), want: true},
		{name: "resource exhausted", err: status.Error(grpccodes.ResourceExhausted, "throttled"), want: true},
		{name: "not found", err: status.Error(grpccodes.NotFound, "missing"), want: false},
		{name: "invalid argument", err: status.Error(grpccodes.InvalidArgument, "bad"), want: false},
		{name: "permission denied", err: status.Error(grpccodes.PermissionDenied, "denied"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

func TestNodePayloadRoundTrip(t *testing.T) {
	strength := 0.8
	node := knowledge.Node{
		ID:          "9f4c3e5a-0000-4000-8000-000000000001",
		Type:        "GatherItem",
		PartitionID: "proj-a",
		Content:     "The composer delivered the main theme.",
		Embedding:   []float32{0.1, 0.2},
		Properties: knowledge.Properties{
			"department": knowledge.String("audio"),
			"priority":   knowledge.Int(3),
		},
		Relationships: []knowledge.Relationship{
			{Type: "references", TargetID: "9f4c3e5a-0000-4000-8000-000000000002", Strength: &strength},
		},
		CreatedAt: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
	}

	payload, err := nodeToPayload(node)
	require.NoError(t, err)

	// String properties are flattened for filtering; non-strings are not
	assert.Equal(t, "audio", payloadString(payload, "department"))
	assert.Equal(t, "proj-a", payloadString(payload, PartitionKey))
	assert.NotContains(t, payload, "priority")

	got, err := payloadToNode(payload)
	require.NoError(t, err)
	assert.Equal(t, node.ID, got.ID)
	assert.Equal(t, node.Type, got.Type)
	assert.Equal(t, node.PartitionID, got.PartitionID)
	assert.Equal(t, node.Content, got.Content)
	assert.True(t, node.CreatedAt.Equal(got.CreatedAt))

	dept, ok := got.Properties["department"].StringValue()
	require.True(t, ok)
	assert.Equal(t, "audio", dept)
	priority, ok := got.Properties["priority"].IntValue()
	require.True(t, ok)
	assert.Equal(t, int64(3), priority)

	require.Len(t, got.Relationships, 1)
	assert.Equal(t, "references", got.Relationships[0].Type)
	require.NotNil(t, got.Relationships[0].Strength)
	assert.Equal(t, 0.8, *got.Relationships[0].Strength)
}

func TestNodeToPayload_ReservedPropertyNotFlattened(t *testing.T) {
	node := knowledge.Node{
		ID:          "n-1",
		Type:        "scene",
		PartitionID: "proj-a",
		Content:     "c",
		Properties: knowledge.Properties{
			PartitionKey: knowledge.String("proj-evil"),
		},
	}

	payload, err := nodeToPayload(node)
	require.NoError(t, err)

	// A property named like the partition key cannot shadow the real one
	assert.Equal(t, "proj-a", payloadString(payload, PartitionKey))
}

func TestSortNodes(t *testing.T) {
	nodes := []knowledge.Node{
		{ID: "scene-9"},
		{ID: "char-1"},
		{ID: "note-5"},
	}

	SortNodes(nodes)

	assert.Equal(t, "char-1", nodes[0].ID)
	assert.Equal(t, "note-5", nodes[1].ID)
	assert.Equal(t, "scene-9", nodes[2].ID)
}

func TestSortScored(t *testing.T) {
	results := []ScoredNode{
		{Node: knowledge.Node{ID: "b"}, Score: 0.5},
		{Node: knowledge.Node{ID: "a"}, Score: 0.5},
		{Node: knowledge.Node{ID: "c"}, Score: 0.9},
	}

	SortScored(results)

	assert.Equal(t, "c", results[0].Node.ID)
	assert.Equal(t, "a", results[1].Node.ID)
	assert.Equal(t, "b", results[2].Node.ID)
}
