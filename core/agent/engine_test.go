package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akfldk1028/ARR-sub002/core/collab"
	"github.com/akfldk1028/ARR-sub002/core/expansion"
	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/router"
	"github.com/akfldk1028/ARR-sub002/core/search"
)

type stubEmbedder struct {
	vec []float32
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vec, nil
}

type recordingDecider struct {
	req      collab.DecisionRequest
	decision collab.Decision
}

func (r *recordingDecider) Decide(_ context.Context, req collab.DecisionRequest) (collab.Decision, error) {
	r.req = req
	return r.decision, nil
}

type stubPeer struct {
	results []search.Result
}

func (s *stubPeer) Search(_ context.Context, _ collab.PeerQuery) (collab.PeerResponse, error) {
	return collab.PeerResponse{Status: collab.StatusSuccess, Results: s.results}, nil
}

func newTestRepo() *graph.MemoryRepository {
	repo := graph.NewMemoryRepository()

	repo.AddDomain(graph.Domain{
		ID:       "traffic",
		Centroid: []float32{1, 0, 0},
		Keywords: []string{"vehicle", "speed"},
	})
	repo.AddDomain(graph.Domain{
		ID:       "tax",
		Centroid: []float32{0, 1, 0},
		Keywords: []string{"income", "vat"},
	})

	repo.AddNode(&graph.Node{
		ID:        "Act::Art36::P1",
		Level:     graph.LevelParagraph,
		Content:   "Vehicles shall not exceed the posted speed limit.",
		Embedding: []float32{0.9, 0.1, 0},
		Ordinal:   1,
		SubType:   "statute",
		Domain:    "traffic",
	})
	repo.AddNode(&graph.Node{
		ID:        "Act::Art36::P2",
		Level:     graph.LevelParagraph,
		Content:   "Emergency vehicles are exempt while responding.",
		Embedding: []float32{0.8, 0.2, 0},
		Ordinal:   2,
		SubType:   "statute",
		Domain:    "traffic",
	})
	return repo
}

func newTestEngine(t *testing.T, coordinator *collab.Coordinator) (*Engine, *graph.MemoryRepository) {
	t.Helper()
	repo := newTestRepo()

	rt, err := router.NewRouter(repo, &stubEmbedder{vec: []float32{1, 0, 0}}, router.Options{})
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	orch := search.NewOrchestrator(repo, &stubEmbedder{vec: []float32{0.9, 0.1, 0}}, nil, search.Options{})

	e := NewEngine(rt, coordinator, Options{})
	e.RegisterDomain("traffic", orch)
	return e, repo
}

func TestEngineSearchLocalOnly(t *testing.T) {
	decider := &recordingDecider{decision: collab.Decision{Reason: "local results sufficient"}}
	e, _ := newTestEngine(t, collab.NewCoordinator(decider, collab.Options{}))

	resp, err := e.Search(context.Background(), "vehicle speed limit", 5)
	require.NoError(t, err)

	assert.Equal(t, graph.DomainID("traffic"), resp.PrimaryDomain)
	assert.Equal(t, []graph.DomainID{"traffic"}, resp.DomainsQueried)
	assert.NotEmpty(t, resp.Results)
	assert.False(t, resp.Stats.CollaborationTrigger)
	assert.NotEmpty(t, resp.Stats.QueryID)
	assert.Contains(t, resp.Stats.RoutingScores, "traffic")

	// The decision gate saw the real local outcome.
	assert.Equal(t, graph.DomainID("traffic"), decider.req.PrimaryDomain)
	assert.Equal(t, len(resp.Results), decider.req.ResultCount)
	assert.Equal(t, resp.Results, decider.req.Preview, "gate judges from a preview of the local results")
}

func TestEngineSearchWithCollaboration(t *testing.T) {
	decider := &recordingDecider{decision: collab.Decision{
		Collaborate: true,
		Targets:     []collab.Target{{Domain: "tax"}},
		Reason:      "cross-domain query",
	}}
	coordinator := collab.NewCoordinator(decider, collab.Options{})
	coordinator.RegisterPeer("tax", &stubPeer{results: []search.Result{
		{NodeID: "TaxAct::Art9", FusedScore: 0.04},
	}})

	e, _ := newTestEngine(t, coordinator)

	resp, err := e.Search(context.Background(), "vehicle speed limit", 5)
	require.NoError(t, err)

	assert.True(t, resp.Stats.CollaborationTrigger)
	assert.Equal(t, []graph.DomainID{"traffic", "tax"}, resp.DomainsQueried)
	assert.Equal(t, []graph.DomainID{"tax"}, resp.Stats.CollaboratingDomains)

	found := false
	for _, r := range resp.Results {
		if r.NodeID == "TaxAct::Art9" {
			found = true
			assert.True(t, r.Collaborated)
		}
	}
	assert.True(t, found)
}

func TestEngineSearchNoCoordinator(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	resp, err := e.Search(context.Background(), "vehicle speed limit", 5)
	require.NoError(t, err)
	assert.False(t, resp.Stats.CollaborationTrigger)
	assert.NotEmpty(t, resp.Results)
}

func TestEngineNoLocalDomain(t *testing.T) {
	repo := newTestRepo()
	rt, err := router.NewRouter(repo, &stubEmbedder{vec: []float32{1, 0, 0}}, router.Options{})
	require.NoError(t, err)
	defer rt.Close()

	e := NewEngine(rt, nil, Options{})
	_, err = e.Search(context.Background(), "anything", 5)
	assert.Error(t, err)
}

func TestEngineExpand(t *testing.T) {
	e, repo := newTestEngine(t, nil)
	repo.AddEdge(&graph.Edge{
		SourceID: "Act::Art36::P1", TargetID: "Act::Art36::P2",
		Type: graph.EdgeNext, BaseCost: 2,
	})
	e.RegisterExpander(expansion.NewCostExpander(repo))

	resp, err := e.Expand(context.Background(), ExpandRequest{Seed: "Act::Art36::P1", Radius: 5})
	require.NoError(t, err)
	assert.Contains(t, resp.Reached, graph.NodeID("Act::Art36::P2"))
	assert.Equal(t, 0.0, resp.Reached["Act::Art36::P1"])

	_, err = e.Expand(context.Background(), ExpandRequest{Seed: "missing", Radius: 5})
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestEngineExpandNotEnabled(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.Expand(context.Background(), ExpandRequest{Seed: "Act::Art36::P1", Radius: 5})
	assert.Error(t, err)
}

func TestEngineSearchLocal(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	results, err := e.SearchLocal(context.Background(), "vehicle speed limit", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}
