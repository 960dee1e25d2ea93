package collab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/router"
	"github.com/akfldk1028/ARR-sub002/core/search"
)

type stubDecider struct {
	decision Decision
	err      error
	delay    time.Duration
}

func (s *stubDecider) Decide(ctx context.Context, _ DecisionRequest) (Decision, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}
	return s.decision, s.err
}

type stubPeer struct {
	results []search.Result
	status  string
	err     error
	delay   time.Duration
	calls   int
	lastQ   PeerQuery
}

func (s *stubPeer) Search(ctx context.Context, q PeerQuery) (PeerResponse, error) {
	s.calls++
	s.lastQ = q
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return PeerResponse{}, ctx.Err()
		}
	}
	if s.err != nil {
		return PeerResponse{}, s.err
	}
	status := s.status
	if status == "" {
		status = StatusSuccess
	}
	return PeerResponse{Status: status, Results: s.results}, nil
}

func primaryResults() []search.Result {
	return []search.Result{
		{NodeID: "Act::Art1", FusedScore: 0.05, SourceDomain: "traffic", Stages: []search.Stage{search.StageVector}},
	}
}

func decisionReq() DecisionRequest {
	return DecisionRequest{
		Query:         "parking fines",
		PrimaryDomain: "traffic",
		Candidates: []router.ScoredDomain{
			{Domain: graph.Domain{ID: "traffic"}, Combined: 0.8},
			{Domain: graph.Domain{ID: "tax"}, Combined: 0.5},
		},
		ResultCount: 1,
		TopScore:    0.05,
	}
}

func TestCollaborateMergesPeerResults(t *testing.T) {
	decider := &stubDecider{decision: Decision{
		Collaborate: true,
		Targets:     []Target{{Domain: "tax", Reason: "fines overlap"}},
		Reason:      "weak local results",
	}}
	c := NewCoordinator(decider, Options{})

	peer := &stubPeer{results: []search.Result{
		{NodeID: "TaxAct::Art9", FusedScore: 0.04, Stages: []search.Stage{search.StageVector}},
	}}
	c.RegisterPeer("tax", peer)

	out := c.Collaborate(context.Background(), decisionReq(), primaryResults(), 10)

	require.True(t, out.Triggered)
	assert.Equal(t, []graph.DomainID{"tax"}, out.Domains)
	require.Len(t, out.Results, 2)

	var remote search.Result
	for _, r := range out.Results {
		if r.NodeID == "TaxAct::Art9" {
			remote = r
		}
	}
	assert.True(t, remote.Collaborated)
	assert.Equal(t, graph.DomainID("tax"), remote.SourceDomain)
	require.Len(t, remote.Stages, 1)
	assert.Equal(t, search.StageVector.Collaborated(), remote.Stages[0])
}

func TestCollaborateDecisionTimeoutFailsOpen(t *testing.T) {
	decider := &stubDecider{delay: time.Second, decision: Decision{Collaborate: true}}
	c := NewCoordinator(decider, Options{DecisionTimeout: 20 * time.Millisecond})

	peer := &stubPeer{}
	c.RegisterPeer("tax", peer)

	primary := primaryResults()
	out := c.Collaborate(context.Background(), decisionReq(), primary, 10)

	assert.False(t, out.Triggered)
	assert.Equal(t, primary, out.Results)
	assert.Zero(t, peer.calls)
}

func TestCollaborateDeciderErrorFailsOpen(t *testing.T) {
	decider := &stubDecider{err: errors.New("provider down")}
	c := NewCoordinator(decider, Options{})

	primary := primaryResults()
	out := c.Collaborate(context.Background(), decisionReq(), primary, 10)

	assert.False(t, out.Triggered)
	assert.Equal(t, primary, out.Results)
}

func TestCollaborateDecisionNegative(t *testing.T) {
	decider := &stubDecider{decision: Decision{Reason: "local results sufficient"}}
	c := NewCoordinator(decider, Options{})

	out := c.Collaborate(context.Background(), decisionReq(), primaryResults(), 10)

	assert.False(t, out.Triggered)
	assert.Equal(t, "local results sufficient", out.Reason)
}

func TestCollaboratePeerFailureLosesOnlyThatPeer(t *testing.T) {
	decider := &stubDecider{decision: Decision{
		Collaborate: true,
		Targets: []Target{
			{Domain: "tax"},
			{Domain: "labor"},
		},
	}}
	c := NewCoordinator(decider, Options{})

	c.RegisterPeer("tax", &stubPeer{err: errors.New("unreachable")})
	c.RegisterPeer("labor", &stubPeer{results: []search.Result{
		{NodeID: "LaborAct::Art3", FusedScore: 0.03},
	}})

	out := c.Collaborate(context.Background(), decisionReq(), primaryResults(), 10)

	require.True(t, out.Triggered)
	assert.Equal(t, []graph.DomainID{"labor"}, out.Domains)
	require.Len(t, out.Results, 2)
}

func TestCollaborateSendsRefinedQueries(t *testing.T) {
	decider := &stubDecider{decision: Decision{
		Collaborate: true,
		Targets: []Target{
			{Domain: "tax", Query: "penalty surcharges on unpaid fines", Reason: "fines overlap"},
			{Domain: "labor", Reason: "no better phrasing"},
		},
	}}
	c := NewCoordinator(decider, Options{})

	tax := &stubPeer{}
	labor := &stubPeer{}
	c.RegisterPeer("tax", tax)
	c.RegisterPeer("labor", labor)

	c.Collaborate(context.Background(), decisionReq(), primaryResults(), 10)

	assert.Equal(t, "penalty surcharges on unpaid fines", tax.lastQ.Query)
	assert.Equal(t, "fines overlap", tax.lastQ.Context)
	assert.Equal(t, "parking fines", labor.lastQ.Query, "target without a refinement gets the original query")
}

func TestCollaborateErrorStatusPeerSkipped(t *testing.T) {
	decider := &stubDecider{decision: Decision{
		Collaborate: true,
		Targets: []Target{
			{Domain: "tax"},
			{Domain: "labor"},
		},
	}}
	c := NewCoordinator(decider, Options{})

	// The tax peer answers over HTTP but failed locally.
	c.RegisterPeer("tax", &stubPeer{status: StatusError})
	c.RegisterPeer("labor", &stubPeer{results: []search.Result{
		{NodeID: "LaborAct::Art3", FusedScore: 0.03},
	}})

	out := c.Collaborate(context.Background(), decisionReq(), primaryResults(), 10)

	require.True(t, out.Triggered)
	assert.NotContains(t, out.Domains, graph.DomainID("tax"))
	assert.Equal(t, []graph.DomainID{"labor"}, out.Domains)
}

func TestCollaborateSlowPeerTimesOut(t *testing.T) {
	decider := &stubDecider{decision: Decision{
		Collaborate: true,
		Targets:     []Target{{Domain: "tax"}},
	}}
	c := NewCoordinator(decider, Options{PeerTimeout: 20 * time.Millisecond})

	c.RegisterPeer("tax", &stubPeer{delay: time.Second})

	primary := primaryResults()
	out := c.Collaborate(context.Background(), decisionReq(), primary, 10)

	assert.False(t, out.Triggered)
	assert.Equal(t, primary, out.Results)
}

func TestCollaborateDuplicateNodePrefersPrimary(t *testing.T) {
	decider := &stubDecider{decision: Decision{
		Collaborate: true,
		Targets:     []Target{{Domain: "tax"}},
	}}
	c := NewCoordinator(decider, Options{})

	// Remote copy of the same node scores higher but the primary
	// domain's copy wins.
	c.RegisterPeer("tax", &stubPeer{results: []search.Result{
		{NodeID: "Act::Art1", FusedScore: 0.9, SourceDomain: "tax"},
	}})

	out := c.Collaborate(context.Background(), decisionReq(), primaryResults(), 10)

	require.True(t, out.Triggered)
	require.Len(t, out.Results, 1)
	assert.Equal(t, graph.DomainID("traffic"), out.Results[0].SourceDomain)
	assert.False(t, out.Results[0].Collaborated)
}

func TestHeuristicDecider(t *testing.T) {
	h := NewHeuristicDecider()

	t.Run("weak results trigger", func(t *testing.T) {
		d, err := h.Decide(context.Background(), decisionReq())
		require.NoError(t, err)
		assert.True(t, d.Collaborate)
		require.Len(t, d.Targets, 1)
		assert.Equal(t, graph.DomainID("tax"), d.Targets[0].Domain)
	})

	t.Run("strong results skip", func(t *testing.T) {
		req := decisionReq()
		req.ResultCount = 10
		req.TopScore = 0.5
		d, err := h.Decide(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, d.Collaborate)
	})

	t.Run("no candidates above floor", func(t *testing.T) {
		req := decisionReq()
		req.Candidates[1].Combined = 0.01
		d, err := h.Decide(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, d.Collaborate)
	})
}

func TestPreviewBounded(t *testing.T) {
	results := make([]search.Result, PreviewLimit+5)
	assert.Len(t, Preview(results), PreviewLimit)
	assert.Len(t, Preview(results[:3]), 3)
}

func TestParseDecisionCodeFence(t *testing.T) {
	content := "```json\n{\"collaborate\": true, \"targets\": [{\"domain\": \"tax\", \"query\": \"surcharges on fines\", \"reason\": \"overlap\"}], \"reason\": \"sparse\"}\n```"
	d, err := parseDecision(content)
	require.NoError(t, err)
	assert.True(t, d.Collaborate)
	require.Len(t, d.Targets, 1)
	assert.Equal(t, graph.DomainID("tax"), d.Targets[0].Domain)
	assert.Equal(t, "surcharges on fines", d.Targets[0].Query)
}

func TestSanitizeDecisionDropsUnknownTargets(t *testing.T) {
	req := decisionReq()
	d := sanitizeDecision(Decision{
		Collaborate: true,
		Targets: []Target{
			{Domain: "traffic"},
			{Domain: "made-up"},
			{Domain: "tax"},
		},
	}, req)

	require.Len(t, d.Targets, 1)
	assert.Equal(t, graph.DomainID("tax"), d.Targets[0].Domain)
	assert.True(t, d.Collaborate)

	empty := sanitizeDecision(Decision{
		Collaborate: true,
		Targets:     []Target{{Domain: "traffic"}},
	}, req)
	assert.False(t, empty.Collaborate)
}
