package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "ingest", "search", "duplicates", "aggregate", "delete", "setup"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestRequirePartition(t *testing.T) {
	partition = ""
	assert.Error(t, requirePartition())

	partition = "my-project"
	require.NoError(t, requirePartition())
	partition = ""
}
