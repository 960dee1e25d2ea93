// Package agent assembles the full search pipeline for one process: route
// the query to a domain, run the hybrid search there, and federate to peer
// agents when the local answer looks thin.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akfldk1028/ARR-sub002/core/collab"
	"github.com/akfldk1028/ARR-sub002/core/expansion"
	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/router"
	"github.com/akfldk1028/ARR-sub002/core/search"
)

// SearchStats summarizes one end-to-end search for callers and logs.
type SearchStats struct {
	QueryID              string             `json:"query_id"`
	Latency              time.Duration      `json:"latency"`
	StageCounts          map[string]int     `json:"per_stage_counts"`
	DegradedStages       []string           `json:"degraded_stages,omitempty"`
	CollaborationTrigger bool               `json:"collaboration_triggered"`
	CollaboratingDomains []graph.DomainID   `json:"collaborating_domains,omitempty"`
	CollaborationReason  string             `json:"collaboration_reason,omitempty"`
	RoutingScores        map[string]float64 `json:"routing_scores,omitempty"`
}

// Response is the engine's answer to one query.
type Response struct {
	Query          string           `json:"query"`
	PrimaryDomain  graph.DomainID   `json:"primary_domain"`
	DomainsQueried []graph.DomainID `json:"domains_queried"`
	Results        []search.Result  `json:"results"`
	Stats          SearchStats      `json:"stats"`
}

// Options tunes the engine.
type Options struct {
	// RouteTopN is how many domains the router considers per query.
	RouteTopN int
	// DefaultLimit applies when a caller asks for <= 0 results.
	DefaultLimit int
}

func (o Options) withDefaults() Options {
	if o.RouteTopN <= 0 {
		o.RouteTopN = 3
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 10
	}
	return o
}

// Engine wires the router, the per-domain orchestrators, and the
// collaboration coordinator into one Search entry point.
type Engine struct {
	router      *router.Router
	coordinator *collab.Coordinator
	opts        Options
	logger      *slog.Logger

	mu       sync.RWMutex
	local    map[graph.DomainID]*search.Orchestrator
	anyDom   graph.DomainID
	expander *expansion.CostExpander
}

// NewEngine creates an Engine. Orchestrators for locally served domains are
// registered with RegisterDomain.
func NewEngine(rt *router.Router, coordinator *collab.Coordinator, opts Options) *Engine {
	return &Engine{
		router:      rt,
		coordinator: coordinator,
		opts:        opts.withDefaults(),
		logger:      slog.Default().With("component", "agent-engine"),
		local:       make(map[graph.DomainID]*search.Orchestrator),
	}
}

// RegisterDomain serves the given domain from this process.
func (e *Engine) RegisterDomain(domain graph.DomainID, orch *search.Orchestrator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.local) == 0 {
		e.anyDom = domain
	}
	e.local[domain] = orch
}

// RegisterExpander enables cost-bounded graph expansion requests.
func (e *Engine) RegisterExpander(exp *expansion.CostExpander) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expander = exp
}

// ExpandRequest asks for all units reachable from a seed within a cost
// radius, under the requester's compliance attributes.
type ExpandRequest struct {
	Seed    graph.NodeID `json:"seed"`
	Radius  float64      `json:"radius"`
	Actor   string       `json:"actor,omitempty"`
	At      time.Time    `json:"at,omitempty"`
	Weight  float64      `json:"weight,omitempty"`
	Permits []string     `json:"permits,omitempty"`
}

// ExpandResponse lists the reached units with their effective costs.
type ExpandResponse struct {
	Seed    graph.NodeID             `json:"seed"`
	Reached map[graph.NodeID]float64 `json:"reached"`
}

// Expand runs a cost-bounded traversal from the requested seed.
func (e *Engine) Expand(ctx context.Context, req ExpandRequest) (*ExpandResponse, error) {
	e.mu.RLock()
	exp := e.expander
	e.mu.RUnlock()
	if exp == nil {
		return nil, fmt.Errorf("cost expansion not enabled")
	}

	result, err := exp.Expand(ctx, req.Seed, req.Radius, graph.RequestContext{
		ActorCategory: req.Actor,
		At:            req.At,
		Weight:        req.Weight,
		Permits:       req.Permits,
	})
	if err != nil {
		return nil, err
	}
	return &ExpandResponse{Seed: result.Seed, Reached: result.Dist}, nil
}

// orchestratorFor falls back to the first registered domain when the router
// picks one this process does not serve locally.
func (e *Engine) orchestratorFor(domain graph.DomainID) (graph.DomainID, *search.Orchestrator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if orch, ok := e.local[domain]; ok {
		return domain, orch, nil
	}
	if orch, ok := e.local[e.anyDom]; ok {
		return e.anyDom, orch, nil
	}
	return "", nil, fmt.Errorf("no local domain registered")
}

// Search answers one query end to end.
func (e *Engine) Search(ctx context.Context, query string, limit int) (*Response, error) {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	start := time.Now()

	scored, err := e.router.RouteTopN(ctx, query, e.opts.RouteTopN)
	if err != nil {
		return nil, fmt.Errorf("route query: %w", err)
	}

	primary, orch, err := e.orchestratorFor(scored[0].Domain.ID)
	if err != nil {
		return nil, err
	}

	results, stageStats, err := orch.Search(ctx, query, primary, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", primary, err)
	}

	outcome := e.federate(ctx, query, primary, scored, results, limit)

	resp := &Response{
		Query:          query,
		PrimaryDomain:  primary,
		DomainsQueried: append([]graph.DomainID{primary}, outcome.Domains...),
		Results:        outcome.Results,
		Stats:          buildStats(stageStats, scored, outcome, time.Since(start)),
	}

	e.logger.Info("search complete",
		"query_id", resp.Stats.QueryID,
		"domain", primary,
		"results", len(resp.Results),
		"collaborated", outcome.Triggered,
		"latency", resp.Stats.Latency)
	return resp, nil
}

// SearchLocal answers a peer's federated query against one locally served
// domain, skipping routing and further collaboration.
func (e *Engine) SearchLocal(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}

	e.mu.RLock()
	domain := e.anyDom
	orch := e.local[domain]
	e.mu.RUnlock()
	if orch == nil {
		return nil, fmt.Errorf("no local domain registered")
	}

	results, _, err := orch.Search(ctx, query, domain, limit)
	return results, err
}

func (e *Engine) federate(
	ctx context.Context,
	query string,
	primary graph.DomainID,
	scored []router.ScoredDomain,
	results []search.Result,
	limit int,
) collab.Outcome {
	if e.coordinator == nil {
		return collab.Outcome{Results: results, Reason: "collaboration disabled"}
	}

	topScore := 0.0
	if len(results) > 0 {
		topScore = results[0].FusedScore
	}

	return e.coordinator.Collaborate(ctx, collab.DecisionRequest{
		Query:         query,
		PrimaryDomain: primary,
		Candidates:    scored,
		Preview:       collab.Preview(results),
		ResultCount:   len(results),
		TopScore:      topScore,
	}, results, limit)
}

func buildStats(stage *search.StageStats, scored []router.ScoredDomain, outcome collab.Outcome, latency time.Duration) SearchStats {
	stats := SearchStats{
		QueryID:              stage.QueryID,
		Latency:              latency,
		StageCounts:          make(map[string]int, len(stage.StageCounts)),
		CollaborationTrigger: outcome.Triggered,
		CollaboratingDomains: outcome.Domains,
		CollaborationReason:  outcome.Reason,
		RoutingScores:        make(map[string]float64, len(scored)),
	}
	for st, count := range stage.StageCounts {
		stats.StageCounts[string(st)] = count
	}
	for _, failed := range stage.FailedStages() {
		stats.DegradedStages = append(stats.DegradedStages, string(failed))
	}
	for _, s := range scored {
		stats.RoutingScores[string(s.Domain.ID)] = s.Combined
	}
	return stats
}
