package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablecraft/braind/internal/ingest"
	"github.com/fablecraft/braind/internal/knowledge"
	"github.com/fablecraft/braind/internal/search"
	"github.com/fablecraft/braind/internal/store"
)

// scenarioEmbedder maps known texts to fixed vectors so similarity scores
// are deterministic.
type scenarioEmbedder struct {
	vectors map[string][]float32
}

func (e *scenarioEmbedder) embed(text string) []float32 {
	if v, ok := e.vectors[text]; ok {
		return v
	}
	return []float32{0, 0, 1}
}

func (e *scenarioEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *scenarioEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *scenarioEmbedder) Model() string  { return "scenario-test" }
func (e *scenarioEmbedder) Dimension() int { return 3 }
func (e *scenarioEmbedder) Close() error   { return nil }

func TestIngestThenSearchThenDuplicates(t *testing.T) {
	const content = "A hero's long journey through trials and growth"

	embedder := &scenarioEmbedder{vectors: map[string][]float32{
		content:        {1, 0, 0},
		"hero journey": {0.9, 0.1, 0},
	}}
	st := store.NewMemoryStore()
	coordinator := ingest.NewCoordinator(st, embedder, nil, ingest.Config{}, nil)
	searcher := search.NewService(st, embedder, search.Config{}, nil)
	ctx := context.Background()

	batch, err := coordinator.CreateBatch(ctx, "p1", []knowledge.NodeInput{
		{Type: "story", Content: content},
	})
	require.NoError(t, err)
	require.True(t, batch.Success)
	require.Equal(t, 1, batch.CreatedCount)
	nodeID := batch.Items[0].ID
	require.NotEmpty(t, nodeID)

	found, err := searcher.Search(ctx, search.Request{
		PartitionID: "p1",
		Query:       "hero journey",
		TopK:        5,
	})
	require.NoError(t, err)
	require.Len(t, found.Results, 1)
	assert.Equal(t, nodeID, found.Results[0].Node.ID)
	assert.Greater(t, found.Results[0].Score, float32(0.5))

	dups, err := searcher.FindDuplicates(ctx, search.DuplicateRequest{
		PartitionID: "p1",
		Content:     content,
	})
	require.NoError(t, err)
	require.Len(t, dups.Results, 1)
	assert.Equal(t, nodeID, dups.Results[0].Node.ID)
	assert.InDelta(t, 1.0, float64(dups.Results[0].Score), 1e-4)

	// Excluding the node's own ID must drop it entirely.
	dups, err = searcher.FindDuplicates(ctx, search.DuplicateRequest{
		PartitionID: "p1",
		Content:     content,
		ExcludeIDs:  []string{nodeID},
	})
	require.NoError(t, err)
	assert.Empty(t, dups.Results)

	// The node never leaks into another partition.
	other, err := searcher.Search(ctx, search.Request{
		PartitionID: "p2",
		Query:       "hero journey",
	})
	require.NoError(t, err)
	assert.Empty(t, other.Results)
}
