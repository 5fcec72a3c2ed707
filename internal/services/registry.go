package services

import (
	"github.com/fablecraft/braind/internal/aggregate"
	"github.com/fablecraft/braind/internal/embeddings"
	"github.com/fablecraft/braind/internal/ingest"
	"github.com/fablecraft/braind/internal/search"
	"github.com/fablecraft/braind/internal/store"
	"github.com/fablecraft/braind/internal/synthesis"
)

// Registry provides access to all braind services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Store() store.Store
	Embedder() embeddings.Provider
	Ingest() *ingest.Coordinator
	Search() *search.Service
	Aggregate() *aggregate.Aggregator
	Synthesizer() synthesis.Synthesizer
}

// Options configures the registry with service instances.
type Options struct {
	Store       store.Store
	Embedder    embeddings.Provider
	Ingest      *ingest.Coordinator
	Search      *search.Service
	Aggregate   *aggregate.Aggregator
	Synthesizer synthesis.Synthesizer
}

// registry is the concrete implementation of Registry.
type registry struct {
	store       store.Store
	embedder    embeddings.Provider
	ingest      *ingest.Coordinator
	search      *search.Service
	aggregate   *aggregate.Aggregator
	synthesizer synthesis.Synthesizer
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		store:       opts.Store,
		embedder:    opts.Embedder,
		ingest:      opts.Ingest,
		search:      opts.Search,
		aggregate:   opts.Aggregate,
		synthesizer: opts.Synthesizer,
	}
}

func (r *registry) Store() store.Store                 { return r.store }
func (r *registry) Embedder() embeddings.Provider      { return r.embedder }
func (r *registry) Ingest() *ingest.Coordinator        { return r.ingest }
func (r *registry) Search() *search.Service            { return r.search }
func (r *registry) Aggregate() *aggregate.Aggregator   { return r.aggregate }
func (r *registry) Synthesizer() synthesis.Synthesizer { return r.synthesizer }
