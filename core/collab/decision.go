// Package collab federates a search across peer domain agents. A decision
// gate judges whether the primary domain's results warrant collaboration,
// and the coordinator fans the query out to the chosen peers in parallel.
package collab

import (
	"context"

	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/router"
	"github.com/akfldk1028/ARR-sub002/core/search"
)

// PreviewLimit caps how many primary results the gate sees.
const PreviewLimit = 10

// DecisionRequest carries everything the gate needs to judge a query.
type DecisionRequest struct {
	Query         string                `json:"query"`
	PrimaryDomain graph.DomainID        `json:"primary_domain"`
	Candidates    []router.ScoredDomain `json:"candidates"`
	Preview       []search.Result       `json:"preview,omitempty"`
	ResultCount   int                   `json:"result_count"`
	TopScore      float64               `json:"top_score"`
}

// Preview caps results at PreviewLimit for inclusion in a DecisionRequest.
func Preview(results []search.Result) []search.Result {
	if len(results) > PreviewLimit {
		return results[:PreviewLimit]
	}
	return results
}

// Target names one peer domain to query, the sub-query refined for it, and
// why it was chosen. An empty Query means the original query is sent as is.
type Target struct {
	Domain graph.DomainID `json:"domain"`
	Query  string         `json:"query,omitempty"`
	Reason string         `json:"reason"`
}

// Decision is the gate's verdict.
type Decision struct {
	Collaborate bool     `json:"collaborate"`
	Targets     []Target `json:"targets"`
	Reason      string   `json:"reason"`
}

// Decider judges whether a query should be federated to peer domains.
type Decider interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
}

// candidateTargets lists the non-primary candidates above a combined-score
// floor, in routing order.
func candidateTargets(req DecisionRequest, minScore float64, reason string) []Target {
	var targets []Target
	for _, c := range req.Candidates {
		if c.Domain.ID == req.PrimaryDomain {
			continue
		}
		if c.Combined < minScore {
			continue
		}
		targets = append(targets, Target{Domain: c.Domain.ID, Reason: reason})
	}
	return targets
}
