package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromBytes_Defaults(t *testing.T) {
	cfg, err := loadFromBytes(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, "memory", cfg.Store.Provider)
	assert.Equal(t, 50, cfg.Ingest.MaxBatchSize)
	assert.Equal(t, 5, cfg.Ingest.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.Ingest.EmbedTimeout)
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	assert.InDelta(t, 0.90, cfg.Search.DuplicateThreshold, 1e-6)
	assert.Equal(t, "department", cfg.Aggregate.GroupKey)
	assert.Equal(t, 5, cfg.Aggregate.TopNodes)
	assert.Equal(t, 15*time.Minute, cfg.Aggregate.CacheTTL)
	assert.False(t, cfg.Synthesis.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
}

func TestLoadFromBytes_YAML(t *testing.T) {
	yaml := []byte(`
logging:
  level: debug
  format: console
store:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 7334
ingest:
  max_batch_size: 25
  embed_timeout: 5s
search:
  duplicate_threshold: 0.85
aggregate:
  group_key: team
  cache_ttl: 1h
`)
	cfg, err := loadFromBytes(yaml)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "qdrant", cfg.Store.Provider)
	assert.Equal(t, "qdrant.internal", cfg.Store.Qdrant.Host)
	assert.Equal(t, 7334, cfg.Store.Qdrant.Port)
	assert.Equal(t, 25, cfg.Ingest.MaxBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Ingest.EmbedTimeout)
	assert.InDelta(t, 0.85, cfg.Search.DuplicateThreshold, 1e-6)
	assert.Equal(t, "team", cfg.Aggregate.GroupKey)
	assert.Equal(t, time.Hour, cfg.Aggregate.CacheTTL)

	// Unset fields still pick up defaults.
	assert.Equal(t, "braind_nodes", cfg.Store.Qdrant.CollectionName)
	assert.Equal(t, 5, cfg.Ingest.MaxConcurrent)
}

func TestLoadFromBytes_EnvOverridesFile(t *testing.T) {
	t.Setenv("BRAIND_LOGGING_LEVEL", "warn")
	t.Setenv("BRAIND_SEARCH_DEFAULT_TOP_K", "20")

	cfg, err := loadFromBytes([]byte("logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.Search.DefaultTopK)
}

func TestLoadFromBytes_InvalidYAML(t *testing.T) {
	_, err := loadFromBytes([]byte("logging: [unclosed"))
	require.Error(t, err)
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BRAIND_LOGGING_LEVEL", "logging.level"},
		{"BRAIND_SEARCH_DEFAULT_TOP_K", "search.default_top_k"},
		{"BRAIND_STORE_PROVIDER", "store.provider"},
		{"BRAIND_SYNTHESIS_API_KEY", "synthesis.api_key"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransform(tt.in), tt.in)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid defaults", func(c *Config) {}, nil},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, ErrInvalidConfig},
		{"bad log format", func(c *Config) { c.Logging.Format = "text" }, ErrInvalidConfig},
		{"bad embeddings provider", func(c *Config) { c.Embeddings.Provider = "cohere" }, ErrUnknownProvider},
		{"openai without base url", func(c *Config) { c.Embeddings.Provider = "openai" }, ErrInvalidConfig},
		{"bad store provider", func(c *Config) { c.Store.Provider = "postgres" }, ErrUnknownProvider},
		{"qdrant port out of range", func(c *Config) {
			c.Store.Provider = "qdrant"
			c.Store.Qdrant.Port = 70000
		}, ErrInvalidConfig},
		{"threshold above one", func(c *Config) { c.Search.DuplicateThreshold = 1.5 }, ErrInvalidConfig},
		{"default top k above max", func(c *Config) { c.Search.DefaultTopK = 200 }, ErrInvalidConfig},
		{"synthesis enabled without key", func(c *Config) { c.Synthesis.Enabled = true }, ErrInvalidConfig},
		{"synthesis enabled with key", func(c *Config) {
			c.Synthesis.Enabled = true
			c.Synthesis.APIKey = "sk-test"
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCheckPathAllowed(t *testing.T) {
	dirs := []string{"/etc/braind", "/home/alice/.config/braind"}

	assert.NoError(t, checkPathAllowed("/etc/braind/config.yaml", dirs))
	assert.NoError(t, checkPathAllowed("/home/alice/.config/braind/config.yaml", dirs))

	err := checkPathAllowed("/tmp/config.yaml", dirs)
	assert.ErrorIs(t, err, ErrInvalidPath)

	// A nested subdirectory is not the allowed directory itself.
	err = checkPathAllowed("/etc/braind/sub/config.yaml", dirs)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestValidateConfigFileProperties(t *testing.T) {
	dir := t.TempDir()

	write := func(name string, perm os.FileMode) os.FileInfo {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("logging: {}\n"), perm))
		info, err := os.Stat(path)
		require.NoError(t, err)
		return info
	}

	assert.NoError(t, validateConfigFileProperties("ok", write("ok.yaml", 0o600)))
	assert.NoError(t, validateConfigFileProperties("ro", write("ro.yaml", 0o400)))

	err := validateConfigFileProperties("open", write("open.yaml", 0o644))
	assert.ErrorIs(t, err, ErrBadPermissions)

	dirInfo, statErr := os.Stat(dir)
	require.NoError(t, statErr)
	err = validateConfigFileProperties(dir, dirInfo)
	assert.ErrorIs(t, err, ErrInvalidPath)
}
