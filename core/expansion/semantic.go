package expansion

import (
	"context"
	"log/slog"
	"sort"

	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/vecmath"
)

// ScoredNode pairs a node with a similarity score in [0, 1].
type ScoredNode struct {
	Node  *graph.Node
	Score float64
}

// SemanticExpander performs embedding-similarity bounded expansion over the
// structural (containment) adjacency of the graph, plus the k-nearest
// variant over the vector index.
//
// The range form answers "what else is relevant near this already-relevant
// node" with a variable result count; the k-NN form answers "the top k best
// matches" with a fixed count.
type SemanticExpander struct {
	repo   graph.Repository
	logger *slog.Logger
}

// NewSemanticExpander creates a SemanticExpander over the given repository.
func NewSemanticExpander(repo graph.Repository) *SemanticExpander {
	return &SemanticExpander{
		repo:   repo,
		logger: slog.Default().With("component", "semantic-expander"),
	}
}

// ExpandBySimilarity returns the structurally adjacent nodes of each seed
// whose cosine similarity to that seed meets the threshold. Adjacency is the
// parent/sibling/child relation of the containment hierarchy. Nodes missing
// an embedding are excluded from scoring, not scored as zero. Duplicates
// across seeds keep their highest score.
func (se *SemanticExpander) ExpandBySimilarity(ctx context.Context, seeds []graph.NodeID, threshold float64) ([]ScoredNode, error) {
	best := make(map[graph.NodeID]ScoredNode)
	seedSet := make(map[graph.NodeID]bool, len(seeds))
	for _, s := range seeds {
		seedSet[s] = true
	}

	for _, seedID := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seed, err := se.repo.GetNode(ctx, seedID)
		if err != nil {
			se.logger.Debug("seed not found, skipping", "seed", seedID, "err", err)
			continue
		}
		if !seed.HasEmbedding() {
			continue
		}

		for _, candidate := range se.structuralAdjacent(ctx, seedID) {
			if seedSet[candidate.ID] {
				continue
			}
			if !candidate.HasEmbedding() {
				continue
			}

			sim := vecmath.CosineSimilarity(seed.Embedding, candidate.Embedding)
			if sim < threshold {
				continue
			}
			if prev, ok := best[candidate.ID]; !ok || sim > prev.Score {
				best[candidate.ID] = ScoredNode{Node: candidate, Score: sim}
			}
		}
	}

	results := make([]ScoredNode, 0, len(best))
	for _, sn := range best {
		results = append(results, sn)
	}
	sortScored(results)
	return results, nil
}

// structuralAdjacent collects parents, children, and siblings of id via
// CONTAINS edges. Lookup failures shrink the candidate set, never fail.
func (se *SemanticExpander) structuralAdjacent(ctx context.Context, id graph.NodeID) []*graph.Node {
	seen := make(map[graph.NodeID]bool)
	var out []*graph.Node

	add := func(n *graph.Node) {
		if n == nil || seen[n.ID] {
			return
		}
		seen[n.ID] = true
		out = append(out, n)
	}

	opts := graph.NeighborOptions{EdgeTypes: []graph.EdgeType{graph.EdgeContains}}

	opts.Direction = graph.DirectionOutgoing
	children, err := se.repo.GetNeighbors(ctx, id, opts)
	if err == nil {
		for _, c := range children {
			add(c.Node)
		}
	}

	opts.Direction = graph.DirectionIncoming
	parents, err := se.repo.GetNeighbors(ctx, id, opts)
	if err != nil {
		return out
	}
	for _, p := range parents {
		add(p.Node)

		// Siblings: the parent's other children.
		opts.Direction = graph.DirectionOutgoing
		siblings, err := se.repo.GetNeighbors(ctx, p.Node.ID, opts)
		if err != nil {
			continue
		}
		for _, s := range siblings {
			if s.Node.ID != id {
				add(s.Node)
			}
		}
	}

	return out
}

// ExpandKNN pulls an oversized candidate pool from the vector index, scores
// it by cosine similarity against the query embedding, and returns the top k
// descending. Fewer than k qualifying candidates return what is available;
// results are never padded.
func (se *SemanticExpander) ExpandKNN(ctx context.Context, query []float32, k, initialCandidates int) ([]ScoredNode, error) {
	if k <= 0 {
		return nil, nil
	}
	pool := initialCandidates
	if pool < k {
		pool = k
	}

	hits, err := se.repo.VectorSearchNodes(ctx, query, pool)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredNode, 0, len(hits))
	for _, hit := range hits {
		if !hit.Node.HasEmbedding() {
			continue
		}
		results = append(results, ScoredNode{
			Node:  hit.Node,
			Score: vecmath.CosineSimilarity(query, hit.Node.Embedding),
		})
	}

	sortScored(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func sortScored(results []ScoredNode) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Node.ID < results[j].Node.ID
	})
}
