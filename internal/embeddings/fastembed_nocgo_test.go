//go:build !cgo

package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastEmbedStub(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "BAAI/bge-small-en-v1.5"})
	assert.ErrorIs(t, err, ErrFastEmbedNotAvailable)
}

func TestEnsureONNXRuntimeStub(t *testing.T) {
	path, err := EnsureONNXRuntime(context.Background())
	require.ErrorIs(t, err, ErrFastEmbedNotAvailable)
	assert.Empty(t, path)
}
