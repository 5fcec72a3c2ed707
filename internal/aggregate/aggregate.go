// Package aggregate assembles cross-group context within a partition: it
// fetches each source group's nodes concurrently, ranks them by relevance
// to a target group, rolls up per-group quality scores, and optionally adds
// LLM-derived themes and a global summary. Synthesis is best-effort; a
// failed group fetch degrades to an empty group rather than failing the
// whole aggregation.
package aggregate

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fablecraft/braind/internal/embeddings"
	"github.com/fablecraft/braind/internal/store"
	"github.com/fablecraft/braind/internal/synthesis"
)

var tracer = otel.Tracer("braind.aggregate")

// ErrNoSourceGroups indicates an aggregation request without source groups.
var ErrNoSourceGroups = errors.New("at least one source group required")

// Config holds aggregation tuning parameters.
type Config struct {
	// GroupKey is the node property that defines group membership.
	// Default: "department".
	GroupKey string

	// TopNodes is how many nodes per group survive relevance ranking.
	// Default: 5.
	TopNodes int

	// PerSourceLimit caps nodes fetched per group when the request leaves
	// it zero. Default: 20.
	PerSourceLimit int

	// MaxConcurrent bounds parallel group fetches. Default: 5.
	MaxConcurrent int

	// MaxThemes caps themes per group. Default: 5.
	MaxThemes int

	// CacheTTL is the target-embedding cache lifetime. Default: 15m.
	CacheTTL time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.GroupKey == "" {
		c.GroupKey = "department"
	}
	if c.TopNodes == 0 {
		c.TopNodes = 5
	}
	if c.PerSourceLimit == 0 {
		c.PerSourceLimit = 20
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 5
	}
	if c.MaxThemes == 0 {
		c.MaxThemes = 5
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 15 * time.Minute
	}
}

// Request describes one aggregation call.
type Request struct {
	// PartitionID scopes the aggregation. Required.
	PartitionID string

	// TargetGroup is the group the context is being assembled for.
	TargetGroup string

	// TargetDescription optionally describes the target group's purpose;
	// it is what gets embedded for relevance scoring. Falls back to the
	// group name itself.
	TargetDescription string

	// SourceGroups are the groups to pull nodes from.
	SourceGroups []string

	// PerSourceLimit caps nodes fetched per group. Zero uses the
	// configured default.
	PerSourceLimit int
}

// GroupContext is the per-group slice of an aggregation result.
type GroupContext struct {
	// Group is the source group name.
	Group string `json:"group"`

	// NodeCount is how many nodes were fetched before top-N truncation.
	NodeCount int `json:"node_count"`

	// TopNodes are the group's most relevant nodes, relevance descending.
	TopNodes []store.ScoredNode `json:"top_nodes"`

	// QualityScore is the mean of the top nodes' relevance scores scaled
	// to 0-100. Zero nodes score 0.
	QualityScore float64 `json:"quality_score"`

	// Themes are LLM-extracted recurring themes. Absent when synthesis is
	// unavailable or failed.
	Themes []string `json:"themes,omitempty"`

	// Failed marks a group whose fetch failed; the group contributes
	// nothing but does not abort the aggregation.
	Failed bool `json:"failed,omitempty"`

	// Error carries the fetch failure detail when Failed is set.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of one AggregateContext call.
type Result struct {
	// TargetGroup echoes the request.
	TargetGroup string `json:"target_group"`

	// Groups holds per-group detail in request order.
	Groups []GroupContext `json:"groups"`

	// RelevantNodes merges every group's top nodes, re-ranked globally by
	// relevance (not concatenated group by group).
	RelevantNodes []store.ScoredNode `json:"relevant_nodes"`

	// TotalNodesAggregated sums fetched node counts across groups before
	// top-N truncation.
	TotalNodesAggregated int `json:"total_nodes_aggregated"`

	// Summary is the optional LLM-written overview across groups. Empty
	// when synthesis is unavailable or failed.
	Summary string `json:"summary,omitempty"`

	// Duration is the wall time of the whole aggregation.
	Duration time.Duration `json:"duration"`
}

// Aggregator runs the aggregation pipeline. It is stateless per call aside
// from the target-embedding cache.
type Aggregator struct {
	store       store.Store
	embedder    embeddings.Embedder
	synthesizer synthesis.Synthesizer
	cache       EmbeddingCache
	config      Config
	logger      *zap.Logger
}

// NewAggregator creates an aggregator. A nil synthesizer disables themes
// and summaries; a nil cache gets a TTL cache with the configured lifetime;
// a nil logger discards logs.
func NewAggregator(st store.Store, embedder embeddings.Embedder, synthesizer synthesis.Synthesizer, cache EmbeddingCache, config Config, logger *zap.Logger) *Aggregator {
	config.ApplyDefaults()
	if synthesizer == nil {
		synthesizer = synthesis.Noop{}
	}
	if cache == nil {
		cache = NewTTLCache(config.CacheTTL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:       st,
		embedder:    embedder,
		synthesizer: synthesizer,
		cache:       cache,
		config:      config,
		logger:      logger,
	}
}

// groupOutcome carries one group's fetch-and-rank result out of the fan-out.
type groupOutcome struct {
	index int
	group GroupContext
}

// AggregateContext assembles context for the target group from the source
// groups. Group fetches run concurrently; each group's failure is isolated.
func (a *Aggregator) AggregateContext(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Aggregator.AggregateContext")
	defer span.End()

	span.SetAttributes(
		attribute.String("partition_id", req.PartitionID),
		attribute.String("target_group", req.TargetGroup),
		attribute.Int("source_groups", len(req.SourceGroups)),
	)

	if err := store.ValidatePartition(req.PartitionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.TargetGroup == "" {
		err := errors.New("target group required")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(req.SourceGroups) == 0 {
		span.SetStatus(codes.Error, "no source groups")
		return nil, ErrNoSourceGroups
	}

	perSourceLimit := req.PerSourceLimit
	if perSourceLimit <= 0 {
		perSourceLimit = a.config.PerSourceLimit
	}

	start := time.Now()

	targetVector, err := a.targetEmbedding(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Fetch and rank every source group concurrently. Theme extraction
	// for a group runs inside its goroutine, after the fetch.
	sem := make(chan struct{}, a.config.MaxConcurrent)
	outcomes := make(chan groupOutcome, len(req.SourceGroups))
	var wg sync.WaitGroup

	for i, group := range req.SourceGroups {
		wg.Add(1)
		go func(index int, group string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes <- groupOutcome{index: index, group: GroupContext{
					Group: group, Failed: true, Error: ctx.Err().Error(),
				}}
				return
			}

			outcomes <- groupOutcome{
				index: index,
				group: a.collectGroup(ctx, req.PartitionID, group, req.TargetGroup, targetVector, perSourceLimit),
			}
		}(i, group)
	}

	wg.Wait()
	close(outcomes)

	groups := make([]GroupContext, len(req.SourceGroups))
	for outcome := range outcomes {
		groups[outcome.index] = outcome.group
	}

	result := &Result{
		TargetGroup: req.TargetGroup,
		Groups:      groups,
	}
	for _, group := range groups {
		result.TotalNodesAggregated += group.NodeCount
		result.RelevantNodes = append(result.RelevantNodes, group.TopNodes...)
	}
	store.SortScored(result.RelevantNodes)

	result.Summary = a.summarize(ctx, req.TargetGroup, groups)
	result.Duration = time.Since(start)

	a.logger.Info("context aggregated",
		zap.String("partition_id", req.PartitionID),
		zap.String("target_group", req.TargetGroup),
		zap.Int("total_nodes", result.TotalNodesAggregated),
		zap.Int("relevant_nodes", len(result.RelevantNodes)),
		zap.Duration("duration", result.Duration),
	)

	span.SetAttributes(attribute.Int("total_nodes", result.TotalNodesAggregated))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// targetEmbedding embeds the target group's description, reusing the cache
// between calls. Cache keys are partition-scoped so descriptions cannot
// leak across projects.
func (a *Aggregator) targetEmbedding(ctx context.Context, req Request) ([]float32, error) {
	description := req.TargetDescription
	if description == "" {
		description = req.TargetGroup
	}

	key := req.PartitionID + "/" + req.TargetGroup
	if vector, ok := a.cache.Get(key); ok {
		return vector, nil
	}

	vector, err := a.embedder.EmbedQuery(ctx, description)
	if err != nil {
		return nil, err
	}
	a.cache.Set(key, vector)
	return vector, nil
}

// collectGroup fetches one group's nodes, ranks them against the target
// vector, rolls up the quality score, and best-effort extracts themes.
func (a *Aggregator) collectGroup(ctx context.Context, partitionID, group, targetGroup string, targetVector []float32, limit int) GroupContext {
	nodes, err := a.store.QueryByPartition(ctx, partitionID, map[string]string{a.config.GroupKey: group}, limit)
	if err != nil {
		a.logger.Warn("group fetch failed",
			zap.String("partition_id", partitionID),
			zap.String("group", group),
			zap.Error(err),
		)
		return GroupContext{Group: group, Failed: true, Error: err.Error()}
	}

	scored := make([]store.ScoredNode, 0, len(nodes))
	for _, node := range nodes {
		scored = append(scored, store.ScoredNode{
			Node:  node,
			Score: store.CosineSimilarity(targetVector, node.Embedding),
		})
	}
	store.SortScored(scored)

	top := scored
	if len(top) > a.config.TopNodes {
		top = top[:a.config.TopNodes]
	}

	gc := GroupContext{
		Group:        group,
		NodeCount:    len(nodes),
		TopNodes:     top,
		QualityScore: qualityScore(top),
	}

	if len(top) > 0 {
		texts := make([]string, len(top))
		for i, sn := range top {
			texts[i] = sn.Node.Content
		}
		themes, err := a.synthesizer.ExtractThemes(ctx, texts, targetGroup, a.config.MaxThemes)
		if err != nil {
			if !errors.Is(err, synthesis.ErrSynthesisUnavailable) {
				a.logger.Warn("theme extraction failed",
					zap.String("group", group),
					zap.Error(err),
				)
			}
		} else {
			gc.Themes = themes
		}
	}

	return gc
}

// summarize best-effort writes the global summary across groups.
func (a *Aggregator) summarize(ctx context.Context, targetGroup string, groups []GroupContext) string {
	var texts []string
	for _, group := range groups {
		for _, sn := range group.TopNodes {
			texts = append(texts, sn.Node.Content)
		}
	}
	if len(texts) == 0 {
		return ""
	}

	summary, err := a.synthesizer.Summarize(ctx, texts, targetGroup)
	if err != nil {
		if !errors.Is(err, synthesis.ErrSynthesisUnavailable) {
			a.logger.Warn("summary generation failed", zap.Error(err))
		}
		return ""
	}
	return summary
}

// qualityScore is the mean of the top nodes' relevance scores scaled to
// 0-100 and clamped. Zero nodes score 0.
func qualityScore(top []store.ScoredNode) float64 {
	if len(top) == 0 {
		return 0
	}
	var sum float64
	for _, sn := range top {
		sum += float64(sn.Score)
	}
	score := sum / float64(len(top)) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
