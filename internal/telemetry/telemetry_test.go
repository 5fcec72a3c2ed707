package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Protocol: "grpc", SampleRate: 0.5}
	assert.NoError(t, cfg.Validate())

	cfg.Protocol = "udp"
	assert.Error(t, cfg.Validate())

	cfg.Protocol = "http"
	cfg.SampleRate = 1.5
	assert.Error(t, cfg.Validate())
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{}, "test")
	require.NoError(t, err)
	require.NotNil(t, tel)

	// Shutdown on a disabled instance is a no-op.
	assert.NoError(t, tel.Shutdown(context.Background()))
}
