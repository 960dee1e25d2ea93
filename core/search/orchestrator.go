package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akfldk1028/ARR-sub002/core/expansion"
	"github.com/akfldk1028/ARR-sub002/core/graph"
)

// Embedder generates an embedding for query text. Calls are fallible and
// safe to retry.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options tunes the orchestrator. Zero values fall back to defaults.
type Options struct {
	// StageTimeout bounds each stage independently of the request deadline.
	StageTimeout time.Duration

	// SimilarityThreshold bounds the graph-expansion stage.
	SimilarityThreshold float64

	// SeedCount is how many top results of the first three stages seed the
	// graph expansion.
	SeedCount int

	// RRFK is the reciprocal rank fusion constant.
	RRFK int

	// DiversityEnabled applies the round-robin sub-type interleave after
	// fusion.
	DiversityEnabled bool
}

func (o Options) withDefaults() Options {
	if o.StageTimeout <= 0 {
		o.StageTimeout = 2 * time.Second
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = 0.65
	}
	if o.SeedCount <= 0 {
		o.SeedCount = 3
	}
	if o.RRFK <= 0 {
		o.RRFK = defaultRRFK
	}
	return o
}

// Orchestrator runs the four hybrid-search stages concurrently for one
// domain, fuses them with RRF, deduplicates, and diversity re-ranks. A
// failing stage degrades to an empty list; the whole search fails only when
// every stage failed.
type Orchestrator struct {
	repo     graph.Repository
	embedder Embedder
	exact    *ExactSearcher
	expander *expansion.SemanticExpander
	fusion   *RRFFusion
	opts     Options
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. exact may be nil, in which case
// the exact stage contributes nothing.
func NewOrchestrator(repo graph.Repository, embedder Embedder, exact *ExactSearcher, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		repo:     repo,
		embedder: embedder,
		exact:    exact,
		expander: expansion.NewSemanticExpander(repo),
		fusion:   NewRRFFusion(opts.RRFK),
		opts:     opts,
		logger:   slog.Default().With("component", "search-orchestrator"),
	}
}

// stageOutput carries one stage's partial list back to the collector.
type stageOutput struct {
	stage   Stage
	results []Result
	err     error
}

// Search runs the hybrid search for query within domain and returns the top
// limit results with per-stage stats.
func (o *Orchestrator) Search(ctx context.Context, query string, domain graph.DomainID, limit int) ([]Result, *StageStats, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 10
	}

	stats := newStageStats(uuid.NewString(), domain)

	embed := o.memoizedEmbed(query)
	lists := o.runPrimaryStages(ctx, query, embed, domain, limit, stats)

	expansionList := o.runExpansionStage(ctx, lists, stats)
	if len(expansionList) > 0 {
		lists = append(lists, expansionList)
	}

	if o.allStagesFailed(stats) {
		stats.Latency = time.Since(start)
		return nil, stats, NewError(KindTotalFailure, ErrAllStagesFailed)
	}

	fused := o.fusion.Fuse(lists...)
	fused = Dedupe(fused)

	if o.opts.DiversityEnabled {
		fused = DiversityInterleave(fused, limit)
	} else {
		fused = Truncate(fused, limit)
	}

	stats.Latency = time.Since(start)
	return fused, stats, nil
}

// memoizedEmbed returns a memoized embed call so the vector and relationship
// stages share one embedding request, retried once on failure.
func (o *Orchestrator) memoizedEmbed(text string) func(context.Context) ([]float32, error) {
	var once sync.Once
	var vec []float32
	var err error

	return func(ctx context.Context) ([]float32, error) {
		once.Do(func() {
			if o.embedder == nil {
				err = NewError(KindTransientBackend, errNoEmbedder)
				return
			}
			vec, err = retryOnce(ctx, func(ctx context.Context) ([]float32, error) {
				return o.embedder.Embed(ctx, text)
			})
		})
		return vec, err
	}
}

// runPrimaryStages executes exact, vector, and relationship concurrently,
// each under its own timeout, and collects whatever arrived.
func (o *Orchestrator) runPrimaryStages(
	ctx context.Context,
	query string,
	embed func(context.Context) ([]float32, error),
	domain graph.DomainID,
	limit int,
	stats *StageStats,
) [][]Result {
	var wg sync.WaitGroup
	outputs := make(chan stageOutput, 3)

	run := func(stage Stage, fn func(context.Context) ([]Result, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stageCtx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
			defer cancel()

			results, err := fn(stageCtx)
			outputs <- stageOutput{stage: stage, results: results, err: err}
		}()
	}

	// A missing exact index is a configuration, not a stage outcome: skip it
	// entirely so it cannot count as a successful pass when everything else
	// fails.
	if o.exact != nil {
		run(StageExact, func(sc context.Context) ([]Result, error) {
			return o.exact.Execute(sc, query, limit)
		})
	}
	run(StageVector, func(sc context.Context) ([]Result, error) {
		return o.vectorStage(sc, embed, domain, limit)
	})
	run(StageRelationship, func(sc context.Context) ([]Result, error) {
		return o.relationshipStage(sc, embed, domain, limit)
	})

	go func() {
		wg.Wait()
		close(outputs)
	}()

	var lists [][]Result
	for out := range outputs {
		stats.record(out.stage, len(out.results), out.err)
		if out.err != nil {
			o.logger.Debug("stage degraded", "stage", out.stage, "err", out.err)
			continue
		}
		if len(out.results) > 0 {
			lists = append(lists, out.results)
		}
	}
	return lists
}

// vectorStage embeds the query and searches node embeddings.
func (o *Orchestrator) vectorStage(ctx context.Context, embed func(context.Context) ([]float32, error), domain graph.DomainID, limit int) ([]Result, error) {
	vec, err := embed(ctx)
	if err != nil {
		return nil, err
	}

	hits, err := retryOnce(ctx, func(ctx context.Context) ([]graph.NodeHit, error) {
		return o.repo.VectorSearchNodes(ctx, vec, limit*3)
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if domain != "" && hit.Node.Domain != "" && hit.Node.Domain != domain {
			continue
		}
		results = append(results, resultFromNode(hit.Node, hit.Score, StageVector))
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// relationshipStage searches edge embeddings and resolves matched edges back
// to result nodes.
func (o *Orchestrator) relationshipStage(ctx context.Context, embed func(context.Context) ([]float32, error), domain graph.DomainID, limit int) ([]Result, error) {
	vec, err := embed(ctx)
	if err != nil {
		return nil, err
	}

	hits, err := retryOnce(ctx, func(ctx context.Context) ([]graph.EdgeHit, error) {
		return o.repo.VectorSearchEdges(ctx, vec, limit*2)
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[graph.NodeID]bool)
	var results []Result
	for _, hit := range hits {
		if domain != "" && hit.To.Domain != "" && hit.To.Domain != domain {
			continue
		}
		for _, node := range o.resolveEdgeTarget(ctx, hit.To) {
			if seen[node.ID] {
				continue
			}
			seen[node.ID] = true
			results = append(results, resultFromNode(node, hit.Score, StageRelationship))
			if len(results) == limit {
				return results, nil
			}
		}
	}
	return results, nil
}

// maxLeafDescendants bounds how many leaves a structural edge target
// resolves to.
const maxLeafDescendants = 3

// resolveEdgeTarget maps an edge target to result nodes. Leaf targets map to
// themselves; structural targets resolve to their nearest leaf descendants
// in lowest-ordinal order, capped at maxLeafDescendants.
func (o *Orchestrator) resolveEdgeTarget(ctx context.Context, target *graph.Node) []*graph.Node {
	if target.Level.IsLeaf() || target.Content != "" {
		return []*graph.Node{target}
	}

	leaves := o.collectLeaves(ctx, target, maxLeafDescendants)
	return leaves
}

// collectLeaves walks CONTAINS edges depth-first in ordinal order and
// returns the first max leaves found.
func (o *Orchestrator) collectLeaves(ctx context.Context, node *graph.Node, max int) []*graph.Node {
	children, err := o.repo.GetNeighbors(ctx, node.ID, graph.NeighborOptions{
		Direction: graph.DirectionOutgoing,
		EdgeTypes: []graph.EdgeType{graph.EdgeContains},
	})
	if err != nil || len(children) == 0 {
		if node.Content != "" {
			return []*graph.Node{node}
		}
		return nil
	}

	sort.Slice(children, func(i, j int) bool {
		if children[i].Node.Ordinal != children[j].Node.Ordinal {
			return children[i].Node.Ordinal < children[j].Node.Ordinal
		}
		return children[i].Node.ID < children[j].Node.ID
	})

	var leaves []*graph.Node
	for _, child := range children {
		for _, leaf := range o.collectLeaves(ctx, child.Node, max-len(leaves)) {
			leaves = append(leaves, leaf)
			if len(leaves) == max {
				return leaves
			}
		}
	}
	return leaves
}

// runExpansionStage seeds semantic expansion with the best results of the
// primary stages and folds its output in as a lower-priority list.
func (o *Orchestrator) runExpansionStage(ctx context.Context, lists [][]Result, stats *StageStats) []Result {
	seeds, seedResults := o.pickSeeds(lists)
	if len(seeds) == 0 {
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
	defer cancel()

	expanded, err := o.expander.ExpandBySimilarity(stageCtx, seeds, o.opts.SimilarityThreshold)
	stats.record(StageGraphNeighbor, len(expanded), err)
	if err != nil {
		o.logger.Debug("expansion stage degraded", "err", err)
		return nil
	}

	out := make([]Result, 0, len(seedResults)+len(expanded))
	for _, sr := range seedResults {
		seed := sr
		seed.Stages = []Stage{StageGraphSeed}
		out = append(out, seed)
	}
	for _, sn := range expanded {
		out = append(out, resultFromNode(sn.Node, sn.Score, StageGraphNeighbor))
	}
	return out
}

// pickSeeds takes the highest-similarity distinct nodes across the primary
// stage lists, up to SeedCount.
func (o *Orchestrator) pickSeeds(lists [][]Result) ([]graph.NodeID, []Result) {
	var flat []Result
	for _, list := range lists {
		flat = append(flat, list...)
	}
	sort.Slice(flat, func(i, j int) bool {
		if flat[i].Similarity != flat[j].Similarity {
			return flat[i].Similarity > flat[j].Similarity
		}
		return flat[i].NodeID < flat[j].NodeID
	})

	seen := make(map[graph.NodeID]bool)
	var seeds []graph.NodeID
	var seedResults []Result
	for _, r := range flat {
		if seen[r.NodeID] {
			continue
		}
		seen[r.NodeID] = true
		seeds = append(seeds, r.NodeID)
		seedResults = append(seedResults, r)
		if len(seeds) == o.opts.SeedCount {
			break
		}
	}
	return seeds, seedResults
}

// allStagesFailed reports whether nothing ran to completion: every stage
// errored and none recorded a successful (even empty) pass.
func (o *Orchestrator) allStagesFailed(stats *StageStats) bool {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	return len(stats.StageCounts) == 0 && len(stats.StageErrors) > 0
}

var errNoEmbedder = errors.New("no embedder configured")

// retryOnce retries an idempotent read a single time on failure, honoring
// context cancellation between attempts.
func retryOnce[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	out, err := fn(ctx)
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, err
	}
	return fn(ctx)
}
