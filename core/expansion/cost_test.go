package expansion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akfldk1028/ARR-sub002/core/graph"
)

func lineGraph(t *testing.T) *graph.MemoryRepository {
	t.Helper()
	repo := graph.NewMemoryRepository()

	for _, id := range []graph.NodeID{"a", "b", "c", "d"} {
		repo.AddNode(&graph.Node{ID: id})
	}
	repo.AddEdge(&graph.Edge{SourceID: "a", TargetID: "b", Type: graph.EdgeNext, BaseCost: 100})
	repo.AddEdge(&graph.Edge{SourceID: "b", TargetID: "c", Type: graph.EdgeNext, BaseCost: 100})
	repo.AddEdge(&graph.Edge{SourceID: "c", TargetID: "d", Type: graph.EdgeNext, BaseCost: 100})

	return repo
}

func TestCostExpander_RadiusBound(t *testing.T) {
	exp := NewCostExpander(lineGraph(t))

	result, err := exp.Expand(context.Background(), "a", 250, graph.RequestContext{})
	require.NoError(t, err)

	assert.True(t, result.Reached("a"))
	assert.True(t, result.Reached("b"))
	assert.True(t, result.Reached("c"))
	assert.False(t, result.Reached("d"), "d costs 300, radius is 250")

	for id, dist := range result.Dist {
		assert.LessOrEqual(t, dist, 250.0, "node %s beyond radius", id)
	}
}

func TestCostExpander_ZeroRadiusReturnsSeedOnly(t *testing.T) {
	exp := NewCostExpander(lineGraph(t))

	result, err := exp.Expand(context.Background(), "a", 0, graph.RequestContext{})
	require.NoError(t, err)

	assert.Equal(t, map[graph.NodeID]float64{"a": 0}, result.Dist)
}

func TestCostExpander_UnknownSeed(t *testing.T) {
	exp := NewCostExpander(lineGraph(t))

	_, err := exp.Expand(context.Background(), "ghost", 100, graph.RequestContext{})
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestCostExpander_BlockingRuleCutsAllPaths(t *testing.T) {
	repo := graph.NewMemoryRepository()
	for _, id := range []graph.NodeID{"a", "b", "c"} {
		repo.AddNode(&graph.Node{ID: id})
	}
	// Only path to c runs through the blocked edge a->b.
	repo.AddEdge(&graph.Edge{
		SourceID: "a", TargetID: "b", Type: graph.EdgeNext, BaseCost: 10,
		Rules: []graph.Rule{{Kind: graph.RuleBlock, ActorPattern: "car"}},
	})
	repo.AddEdge(&graph.Edge{SourceID: "b", TargetID: "c", Type: graph.EdgeNext, BaseCost: 10})

	exp := NewCostExpander(repo)

	blocked, err := exp.Expand(context.Background(), "a", 10000, graph.RequestContext{ActorCategory: "car"})
	require.NoError(t, err)
	assert.False(t, blocked.Reached("b"))
	assert.False(t, blocked.Reached("c"))

	open, err := exp.Expand(context.Background(), "a", 10000, graph.RequestContext{ActorCategory: "bus"})
	require.NoError(t, err)
	assert.True(t, open.Reached("c"))
}

func TestCostExpander_PenaltyAdditivity(t *testing.T) {
	repo := graph.NewMemoryRepository()
	repo.AddNode(&graph.Node{ID: "a"})
	repo.AddNode(&graph.Node{ID: "b"})
	repo.AddEdge(&graph.Edge{
		SourceID: "a", TargetID: "b", Type: graph.EdgeNext, BaseCost: 100,
		Rules: []graph.Rule{
			{Kind: graph.RulePenalty, Delta: 50},
			{Kind: graph.RulePenalty, Delta: 70},
		},
	})

	exp := NewCostExpander(repo)
	result, err := exp.Expand(context.Background(), "a", 1000, graph.RequestContext{})
	require.NoError(t, err)

	assert.Equal(t, 220.0, result.Dist["b"], "base + d1 + d2")
}

// Scenario from the routing design: neighbor at base cost 200 with a busOnly
// penalty of +300 for non-bus actors, radius 300.
func TestCostExpander_BusOnlyScenario(t *testing.T) {
	repo := graph.NewMemoryRepository()
	repo.AddNode(&graph.Node{ID: "A"})
	repo.AddNode(&graph.Node{ID: "B"})
	repo.AddEdge(&graph.Edge{
		SourceID: "A", TargetID: "B", Type: graph.EdgeNext, BaseCost: 200,
		Rules: []graph.Rule{{Name: "busOnly", Kind: graph.RulePenalty, ExemptActorPattern: "bus", Delta: 300}},
	})

	exp := NewCostExpander(repo)

	car, err := exp.Expand(context.Background(), "A", 300, graph.RequestContext{ActorCategory: "car"})
	require.NoError(t, err)
	assert.False(t, car.Reached("B"), "car pays 500 > 300")

	bus, err := exp.Expand(context.Background(), "A", 300, graph.RequestContext{ActorCategory: "bus"})
	require.NoError(t, err)
	assert.True(t, bus.Reached("B"), "bus pays 200 <= 300")
	assert.Equal(t, 200.0, bus.Dist["B"])
}

func TestCostExpander_ShorterPathWins(t *testing.T) {
	repo := graph.NewMemoryRepository()
	for _, id := range []graph.NodeID{"a", "b", "c"} {
		repo.AddNode(&graph.Node{ID: id})
	}
	repo.AddEdge(&graph.Edge{SourceID: "a", TargetID: "c", Type: graph.EdgeNext, BaseCost: 500})
	repo.AddEdge(&graph.Edge{SourceID: "a", TargetID: "b", Type: graph.EdgeNext, BaseCost: 100})
	repo.AddEdge(&graph.Edge{SourceID: "b", TargetID: "c", Type: graph.EdgeNext, BaseCost: 100})

	exp := NewCostExpander(repo)
	result, err := exp.Expand(context.Background(), "a", 600, graph.RequestContext{})
	require.NoError(t, err)

	assert.Equal(t, 200.0, result.Dist["c"])
}
