// Package expansion implements the two graph-expansion engines: cost-radius
// bounded traversal with rule-modified edge costs (compliance routing) and
// similarity-threshold bounded semantic expansion with its k-nearest variant.
package expansion

import (
	"container/heap"
	"context"
	"log/slog"

	"github.com/akfldk1028/ARR-sub002/core/graph"
)

// CostExpansion is the result of a cost-bounded traversal: the reached set
// with the shortest effective cost to each node. The seed is always present
// at distance 0.
type CostExpansion struct {
	Seed graph.NodeID
	Dist map[graph.NodeID]float64
}

// Reached reports whether id was reached within the radius.
func (ce *CostExpansion) Reached(id graph.NodeID) bool {
	_, ok := ce.Dist[id]
	return ok
}

// CostExpander runs Dijkstra bounded by a cost radius, applying each edge's
// rules against the request context to compute effective costs. The engine
// never mutates the graph.
type CostExpander struct {
	repo   graph.Repository
	logger *slog.Logger
}

// NewCostExpander creates a CostExpander over the given repository.
func NewCostExpander(repo graph.Repository) *CostExpander {
	return &CostExpander{
		repo:   repo,
		logger: slog.Default().With("component", "cost-expander"),
	}
}

// Expand traverses outgoing edges from seed, keeping every node whose
// shortest effective cost is within radius. A non-positive radius returns
// only the seed. Neighbor lookup failures are treated as "no edge".
func (ce *CostExpander) Expand(ctx context.Context, seed graph.NodeID, radius float64, rctx graph.RequestContext) (*CostExpansion, error) {
	if _, err := ce.repo.GetNode(ctx, seed); err != nil {
		return nil, err
	}

	result := &CostExpansion{
		Seed: seed,
		Dist: map[graph.NodeID]float64{seed: 0},
	}
	if radius <= 0 {
		return result, nil
	}

	pq := &costQueue{{id: seed, cost: 0}}
	heap.Init(pq)
	settled := make(map[graph.NodeID]bool)

	for pq.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		curr := heap.Pop(pq).(costEntry)

		// Pop order is monotonically non-decreasing, so the first entry
		// past the radius ends the traversal.
		if curr.cost > radius {
			break
		}
		if settled[curr.id] {
			continue
		}
		settled[curr.id] = true

		ce.relaxNeighbors(ctx, curr, radius, rctx, result.Dist, pq)
	}

	return result, nil
}

func (ce *CostExpander) relaxNeighbors(
	ctx context.Context,
	curr costEntry,
	radius float64,
	rctx graph.RequestContext,
	dist map[graph.NodeID]float64,
	pq *costQueue,
) {
	neighbors, err := ce.repo.GetNeighbors(ctx, curr.id, graph.NeighborOptions{Direction: graph.DirectionOutgoing})
	if err != nil {
		ce.logger.Debug("neighbor lookup failed, skipping", "node", curr.id, "err", err)
		return
	}

	for _, nb := range neighbors {
		cost, blocked := nb.Edge.EffectiveCost(rctx)
		if blocked {
			continue
		}

		next := curr.cost + cost
		if next > radius {
			continue
		}
		if known, ok := dist[nb.Node.ID]; ok && known <= next {
			continue
		}

		dist[nb.Node.ID] = next
		heap.Push(pq, costEntry{id: nb.Node.ID, cost: next})
	}
}

// =============================================================================
// Priority Queue
// =============================================================================

type costEntry struct {
	id   graph.NodeID
	cost float64
}

type costQueue []costEntry

func (q costQueue) Len() int            { return len(q) }
func (q costQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q costQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *costQueue) Push(x interface{}) { *q = append(*q, x.(costEntry)) }

func (q *costQueue) Pop() interface{} {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}
