package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fablecraft/braind/internal/telemetry"
)

// Sentinel errors for configuration validation.
var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidPath     = errors.New("invalid config file path")
	ErrConfigTooLarge  = errors.New("config file too large")
	ErrBadPermissions  = errors.New("config file permissions too open")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Config is the root configuration for braind.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Store      StoreConfig      `koanf:"store"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Search     SearchConfig     `koanf:"search"`
	Aggregate  AggregateConfig  `koanf:"aggregate"`
	Synthesis  SynthesisConfig  `koanf:"synthesis"`
	Telemetry  telemetry.Config `koanf:"telemetry"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	Dimension int    `koanf:"dimension"`
}

// StoreConfig selects the node store backend.
type StoreConfig struct {
	Provider string       `koanf:"provider"`
	Qdrant   QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig configures the Qdrant-backed store.
type QdrantConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	CollectionName string        `koanf:"collection_name"`
	UseTLS         bool          `koanf:"use_tls"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBackoff   time.Duration `koanf:"retry_backoff"`
}

// IngestConfig bounds batch ingestion.
type IngestConfig struct {
	MaxBatchSize  int           `koanf:"max_batch_size"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	EmbedTimeout  time.Duration `koanf:"embed_timeout"`
}

// SearchConfig controls semantic search and duplicate detection.
type SearchConfig struct {
	DefaultTopK        int     `koanf:"default_top_k"`
	MaxTopK            int     `koanf:"max_top_k"`
	DuplicateThreshold float32 `koanf:"duplicate_threshold"`
	DuplicateLimit     int     `koanf:"duplicate_limit"`
}

// AggregateConfig controls cross-group context aggregation.
type AggregateConfig struct {
	GroupKey       string        `koanf:"group_key"`
	TopNodes       int           `koanf:"top_nodes"`
	PerSourceLimit int           `koanf:"per_source_limit"`
	MaxConcurrent  int           `koanf:"max_concurrent"`
	MaxThemes      int           `koanf:"max_themes"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
}

// SynthesisConfig configures the optional LLM synthesis layer.
type SynthesisConfig struct {
	Enabled   bool          `koanf:"enabled"`
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	APIKey    string        `koanf:"api_key"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "memory"
	}
	if cfg.Store.Qdrant.Host == "" {
		cfg.Store.Qdrant.Host = "localhost"
	}
	if cfg.Store.Qdrant.Port == 0 {
		cfg.Store.Qdrant.Port = 6334
	}
	if cfg.Store.Qdrant.CollectionName == "" {
		cfg.Store.Qdrant.CollectionName = "braind_nodes"
	}
	if cfg.Store.Qdrant.MaxRetries == 0 {
		cfg.Store.Qdrant.MaxRetries = 3
	}
	if cfg.Store.Qdrant.RetryBackoff == 0 {
		cfg.Store.Qdrant.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.Ingest.MaxBatchSize == 0 {
		cfg.Ingest.MaxBatchSize = 50
	}
	if cfg.Ingest.MaxConcurrent == 0 {
		cfg.Ingest.MaxConcurrent = 5
	}
	if cfg.Ingest.EmbedTimeout == 0 {
		cfg.Ingest.EmbedTimeout = 10 * time.Second
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.DuplicateThreshold == 0 {
		cfg.Search.DuplicateThreshold = 0.90
	}
	if cfg.Search.DuplicateLimit == 0 {
		cfg.Search.DuplicateLimit = 10
	}
	if cfg.Aggregate.GroupKey == "" {
		cfg.Aggregate.GroupKey = "department"
	}
	if cfg.Aggregate.TopNodes == 0 {
		cfg.Aggregate.TopNodes = 5
	}
	if cfg.Aggregate.PerSourceLimit == 0 {
		cfg.Aggregate.PerSourceLimit = 20
	}
	if cfg.Aggregate.MaxConcurrent == 0 {
		cfg.Aggregate.MaxConcurrent = 5
	}
	if cfg.Aggregate.MaxThemes == 0 {
		cfg.Aggregate.MaxThemes = 5
	}
	if cfg.Aggregate.CacheTTL == 0 {
		cfg.Aggregate.CacheTTL = 15 * time.Minute
	}
	if cfg.Synthesis.Model == "" {
		cfg.Synthesis.Model = "gpt-4o-mini"
	}
	if cfg.Synthesis.Timeout == 0 {
		cfg.Synthesis.Timeout = 30 * time.Second
	}
	if cfg.Synthesis.RateLimit == 0 {
		cfg.Synthesis.RateLimit = 2
	}
	cfg.Telemetry.ApplyDefaults()
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}
	switch c.Embeddings.Provider {
	case "fastembed", "openai":
	default:
		return fmt.Errorf("%w: embeddings.provider %q", ErrUnknownProvider, c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && c.Embeddings.BaseURL == "" {
		return fmt.Errorf("%w: embeddings.base_url required for openai provider", ErrInvalidConfig)
	}
	switch c.Store.Provider {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("%w: store.provider %q", ErrUnknownProvider, c.Store.Provider)
	}
	if c.Store.Provider == "qdrant" {
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("%w: store.qdrant.host required", ErrInvalidConfig)
		}
		if c.Store.Qdrant.Port <= 0 || c.Store.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: store.qdrant.port %d out of range", ErrInvalidConfig, c.Store.Qdrant.Port)
		}
	}
	if c.Ingest.MaxBatchSize < 1 {
		return fmt.Errorf("%w: ingest.max_batch_size must be positive", ErrInvalidConfig)
	}
	if c.Ingest.MaxConcurrent < 1 {
		return fmt.Errorf("%w: ingest.max_concurrent must be positive", ErrInvalidConfig)
	}
	if c.Search.DuplicateThreshold <= 0 || c.Search.DuplicateThreshold > 1 {
		return fmt.Errorf("%w: search.duplicate_threshold must be in (0, 1]", ErrInvalidConfig)
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("%w: search.default_top_k exceeds search.max_top_k", ErrInvalidConfig)
	}
	if c.Aggregate.TopNodes < 1 {
		return fmt.Errorf("%w: aggregate.top_nodes must be positive", ErrInvalidConfig)
	}
	if c.Synthesis.Enabled && c.Synthesis.APIKey == "" {
		return fmt.Errorf("%w: synthesis.api_key required when synthesis is enabled", ErrInvalidConfig)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
