package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablecraft/braind/internal/knowledge"
	"github.com/fablecraft/braind/internal/store"
)

// mockEmbedder maps query text to fixed vectors.
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (m *mockEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.lookup(text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return m.lookup(text)
}

func (m *mockEmbedder) lookup(text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()

	nodes := []knowledge.Node{
		{ID: "n-theme", Type: "GatherItem", Content: "main theme composition", Embedding: []float32{1, 0, 0},
			Properties: knowledge.Properties{"department": knowledge.String("audio")}},
		{ID: "n-theme-copy", Type: "GatherItem", Content: "main theme composition duplicate", Embedding: []float32{0.99, 0.01, 0},
			Properties: knowledge.Properties{"department": knowledge.String("audio")}},
		{ID: "n-storyboard", Type: "GatherItem", Content: "act two storyboards", Embedding: []float32{0, 1, 0},
			Properties: knowledge.Properties{"department": knowledge.String("visual")}},
	}
	require.NoError(t, s.CreateNodes(ctx, "proj-a", nodes))
	require.NoError(t, s.CreateNodes(ctx, "proj-b", []knowledge.Node{
		{ID: "other-partition", Type: "GatherItem", Content: "main theme composition", Embedding: []float32{1, 0, 0}},
	}))
	return s
}

func newTestService(t *testing.T) (*Service, *mockEmbedder) {
	t.Helper()
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"theme music": {1, 0, 0},
	}}
	return NewService(seedStore(t), embedder, Config{}, nil), embedder
}

func TestSearch_SemanticQuery(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Search(context.Background(), Request{
		PartitionID: "proj-a",
		Query:       "theme music",
		TopK:        2,
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	assert.Equal(t, "n-theme", result.Results[0].Node.ID)
	assert.Equal(t, "n-theme-copy", result.Results[1].Node.ID)
	assert.Greater(t, result.Results[0].Score, result.Results[1].Score)
	assert.GreaterOrEqual(t, result.EmbedDuration.Nanoseconds(), int64(0))
}

func TestSearch_VectorQuerySkipsEmbedding(t *testing.T) {
	svc, embedder := newTestService(t)

	result, err := svc.Search(context.Background(), Request{
		PartitionID: "proj-a",
		Vector:      []float32{1, 0, 0},
		TopK:        1,
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Zero(t, embedder.calls)
	assert.Zero(t, result.EmbedDuration)
}

func TestSearch_PartitionScoped(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Search(context.Background(), Request{
		PartitionID: "proj-b",
		Query:       "theme music",
		TopK:        10,
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, "other-partition", result.Results[0].Node.ID)
}

func TestSearch_PropertyFilters(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Search(context.Background(), Request{
		PartitionID: "proj-a",
		Query:       "theme music",
		TopK:        10,
		Filters:     map[string]string{"department": "visual"},
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, "n-storyboard", result.Results[0].Node.ID)
}

func TestSearch_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Search(ctx, Request{Query: "q"})
	assert.ErrorIs(t, err, store.ErrMissingPartition)

	_, err = svc.Search(ctx, Request{PartitionID: "proj-a"})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = svc.Search(ctx, Request{
		PartitionID: "proj-a",
		Query:       "q",
		Filters:     map[string]string{store.PartitionKey: "proj-b"},
	})
	assert.ErrorIs(t, err, store.ErrReservedFilterKey)
}

func TestSearch_EmbedderFailure(t *testing.T) {
	embedder := &mockEmbedder{err: errors.New("embedder down")}
	svc := NewService(seedStore(t), embedder, Config{}, nil)

	_, err := svc.Search(context.Background(), Request{
		PartitionID: "proj-a",
		Query:       "anything",
	})
	assert.ErrorContains(t, err, "embedder down")
}

func TestFindDuplicates_ThresholdDrops(t *testing.T) {
	svc, _ := newTestService(t)

	// The query vector matches n-theme exactly and n-theme-copy nearly;
	// n-storyboard is orthogonal and must be dropped, not ranked last.
	result, err := svc.FindDuplicates(context.Background(), DuplicateRequest{
		PartitionID: "proj-a",
		Content:     "theme music",
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	assert.Equal(t, "n-theme", result.Results[0].Node.ID)
	for _, r := range result.Results {
		assert.GreaterOrEqual(t, r.Score, float32(0.90))
	}
}

func TestFindDuplicates_ExcludesSelf(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.FindDuplicates(context.Background(), DuplicateRequest{
		PartitionID: "proj-a",
		Content:     "theme music",
		ExcludeIDs:  []string{"n-theme"},
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, "n-theme-copy", result.Results[0].Node.ID)
}

func TestFindDuplicates_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.FindDuplicates(ctx, DuplicateRequest{Content: "c"})
	assert.ErrorIs(t, err, store.ErrMissingPartition)

	_, err = svc.FindDuplicates(ctx, DuplicateRequest{PartitionID: "proj-a"})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 10, cfg.DefaultTopK)
	assert.Equal(t, 100, cfg.MaxTopK)
	assert.Equal(t, float32(0.90), cfg.DuplicateThreshold)
	assert.Equal(t, 10, cfg.DuplicateLimit)
}
