// Package services wires configuration into the concrete service
// instances that make up a running braind process.
package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fablecraft/braind/internal/aggregate"
	"github.com/fablecraft/braind/internal/config"
	"github.com/fablecraft/braind/internal/embeddings"
	"github.com/fablecraft/braind/internal/ingest"
	"github.com/fablecraft/braind/internal/logging"
	"github.com/fablecraft/braind/internal/search"
	"github.com/fablecraft/braind/internal/store"
	"github.com/fablecraft/braind/internal/synthesis"
)

// Build constructs the full service graph from configuration. The
// returned close function releases backend connections and should be
// deferred by the caller.
func Build(cfg *config.Config, logger *zap.Logger) (Registry, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey,
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building embedding provider: %w", err)
	}
	embedder = embeddings.Instrument(embedder, embeddings.NewMetrics(logger))

	st, err := buildStore(cfg, embedder.Dimension())
	if err != nil {
		_ = embedder.Close()
		return nil, nil, err
	}

	var synthesizer synthesis.Synthesizer = synthesis.Noop{}
	if cfg.Synthesis.Enabled {
		synthesizer, err = synthesis.NewLLMSynthesizer(synthesis.Config{
			BaseURL:   cfg.Synthesis.BaseURL,
			Model:     cfg.Synthesis.Model,
			APIKey:    cfg.Synthesis.APIKey,
			Timeout:   cfg.Synthesis.Timeout,
			RateLimit: cfg.Synthesis.RateLimit,
		}, logger)
		if err != nil {
			_ = st.Close()
			_ = embedder.Close()
			return nil, nil, fmt.Errorf("building synthesizer: %w", err)
		}
		logger.Info("synthesis enabled",
			zap.String("model", cfg.Synthesis.Model),
			logging.Secret("api_key", cfg.Synthesis.APIKey),
		)
	}

	coordinator := ingest.NewCoordinator(st, embedder, nil, ingest.Config{
		MaxBatchSize:  cfg.Ingest.MaxBatchSize,
		MaxConcurrent: cfg.Ingest.MaxConcurrent,
		EmbedTimeout:  cfg.Ingest.EmbedTimeout,
	}, logger)

	searcher := search.NewService(st, embedder, search.Config{
		DefaultTopK:        cfg.Search.DefaultTopK,
		MaxTopK:            cfg.Search.MaxTopK,
		DuplicateThreshold: cfg.Search.DuplicateThreshold,
		DuplicateLimit:     cfg.Search.DuplicateLimit,
	}, logger)

	aggregator := aggregate.NewAggregator(st, embedder, synthesizer,
		aggregate.NewTTLCache(cfg.Aggregate.CacheTTL), aggregate.Config{
			GroupKey:       cfg.Aggregate.GroupKey,
			TopNodes:       cfg.Aggregate.TopNodes,
			PerSourceLimit: cfg.Aggregate.PerSourceLimit,
			MaxConcurrent:  cfg.Aggregate.MaxConcurrent,
			MaxThemes:      cfg.Aggregate.MaxThemes,
			CacheTTL:       cfg.Aggregate.CacheTTL,
		}, logger)

	reg := NewRegistry(Options{
		Store:       st,
		Embedder:    embedder,
		Ingest:      coordinator,
		Search:      searcher,
		Aggregate:   aggregator,
		Synthesizer: synthesizer,
	})

	closeFn := func() error {
		return errors.Join(st.Close(), embedder.Close())
	}
	return reg, closeFn, nil
}

func buildStore(cfg *config.Config, dimension int) (store.Store, error) {
	switch cfg.Store.Provider {
	case "memory", "":
		return store.NewMemoryStore(), nil
	case "qdrant":
		qs, err := store.NewQdrantStore(store.QdrantConfig{
			Host:           cfg.Store.Qdrant.Host,
			Port:           cfg.Store.Qdrant.Port,
			CollectionName: cfg.Store.Qdrant.CollectionName,
			VectorSize:     uint64(dimension),
			UseTLS:         cfg.Store.Qdrant.UseTLS,
			MaxRetries:     cfg.Store.Qdrant.MaxRetries,
			RetryBackoff:   cfg.Store.Qdrant.RetryBackoff,
		})
		if err != nil {
			return nil, fmt.Errorf("building qdrant store: %w", err)
		}
		return qs, nil
	default:
		return nil, fmt.Errorf("%w: store provider %q", config.ErrUnknownProvider, cfg.Store.Provider)
	}
}
