package collab

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/search"
)

// Peer protocol status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// PeerQuery is the request shape sent to a peer domain agent.
type PeerQuery struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
	Limit   int    `json:"limit"`
}

// PeerResponse is what a peer returns. A Status other than StatusSuccess
// means the peer failed locally and contributed nothing.
type PeerResponse struct {
	Status  string          `json:"status"`
	Results []search.Result `json:"results"`
}

// Peer executes a search on a remote domain agent.
type Peer interface {
	Search(ctx context.Context, q PeerQuery) (PeerResponse, error)
}

// Options tunes the coordinator.
type Options struct {
	// DecisionTimeout bounds the decision gate. On timeout or error the
	// coordinator fails open and returns the primary results untouched.
	DecisionTimeout time.Duration
	// PeerTimeout bounds each peer search independently.
	PeerTimeout time.Duration
	// MaxTargets caps how many peers one query fans out to.
	MaxTargets int
}

func (o Options) withDefaults() Options {
	if o.DecisionTimeout <= 0 {
		o.DecisionTimeout = time.Second
	}
	if o.PeerTimeout <= 0 {
		o.PeerTimeout = 3 * time.Second
	}
	if o.MaxTargets <= 0 {
		o.MaxTargets = 2
	}
	return o
}

// Outcome reports what collaboration did to the result set.
type Outcome struct {
	Results   []search.Result  `json:"results"`
	Triggered bool             `json:"triggered"`
	Domains   []graph.DomainID `json:"domains"`
	Reason    string           `json:"reason"`
}

// Coordinator runs the decision gate and, when it fires, queries peer
// domains in parallel and folds their results into the primary set.
type Coordinator struct {
	decider Decider
	peers   map[graph.DomainID]Peer
	opts    Options
	logger  *slog.Logger

	mu sync.RWMutex
}

// NewCoordinator creates a Coordinator. A nil decider disables
// collaboration entirely.
func NewCoordinator(decider Decider, opts Options) *Coordinator {
	return &Coordinator{
		decider: decider,
		peers:   make(map[graph.DomainID]Peer),
		opts:    opts.withDefaults(),
		logger:  slog.Default().With("component", "collab-coordinator"),
	}
}

// RegisterPeer makes a peer reachable for the given domain.
func (c *Coordinator) RegisterPeer(domain graph.DomainID, peer Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[domain] = peer
}

func (c *Coordinator) peer(domain graph.DomainID) (Peer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.peers[domain]
	return p, ok
}

// Collaborate runs one round. Every failure mode short of a caller-canceled
// context degrades to the primary results rather than erroring.
func (c *Coordinator) Collaborate(ctx context.Context, req DecisionRequest, primary []search.Result, limit int) Outcome {
	passthrough := Outcome{Results: primary, Reason: "collaboration disabled"}
	if c.decider == nil {
		return passthrough
	}

	decision, err := c.decide(ctx, req)
	if err != nil {
		c.logger.Warn("decision gate failed open", "query", req.Query, "err", err)
		passthrough.Reason = "decision gate unavailable"
		return passthrough
	}
	if !decision.Collaborate {
		passthrough.Reason = decision.Reason
		return passthrough
	}

	targets := decision.Targets
	if len(targets) > c.opts.MaxTargets {
		targets = targets[:c.opts.MaxTargets]
	}

	remote, queried := c.fanOut(ctx, req.Query, targets, limit)
	if len(queried) == 0 {
		passthrough.Reason = "no reachable peers"
		return passthrough
	}

	merged := search.DedupePreferDomain(append(primary, remote...), string(req.PrimaryDomain))
	search.SortByFusedScore(merged)
	merged = search.Truncate(merged, limit)

	return Outcome{
		Results:   merged,
		Triggered: true,
		Domains:   queried,
		Reason:    decision.Reason,
	}
}

// decide runs the gate under its own timeout in a goroutine so a hung
// provider cannot hold the search past DecisionTimeout.
func (c *Coordinator) decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	decideCtx, cancel := context.WithTimeout(ctx, c.opts.DecisionTimeout)
	defer cancel()

	type verdict struct {
		decision Decision
		err      error
	}
	ch := make(chan verdict, 1)
	go func() {
		d, err := c.decider.Decide(decideCtx, req)
		ch <- verdict{d, err}
	}()

	select {
	case v := <-ch:
		return v.decision, v.err
	case <-decideCtx.Done():
		return Decision{}, decideCtx.Err()
	}
}

// fanOut queries every target peer concurrently with its refined sub-query
// and merges in completion order. A slow or failing peer only loses its own
// contribution.
func (c *Coordinator) fanOut(ctx context.Context, query string, targets []Target, limit int) ([]search.Result, []graph.DomainID) {
	type peerResult struct {
		domain  graph.DomainID
		results []search.Result
		err     error
	}

	ch := make(chan peerResult, len(targets))
	var wg sync.WaitGroup

	launched := 0
	for _, target := range targets {
		peer, ok := c.peer(target.Domain)
		if !ok {
			c.logger.Debug("no peer registered", "domain", target.Domain)
			continue
		}
		launched++

		subQuery := target.Query
		if subQuery == "" {
			subQuery = query
		}

		wg.Add(1)
		go func(domain graph.DomainID, p Peer, subQuery, reason string) {
			defer wg.Done()

			peerCtx, cancel := context.WithTimeout(ctx, c.opts.PeerTimeout)
			defer cancel()

			resp, err := p.Search(peerCtx, PeerQuery{Query: subQuery, Context: reason, Limit: limit})
			if err != nil {
				ch <- peerResult{domain: domain, err: err}
				return
			}
			if resp.Status != StatusSuccess {
				ch <- peerResult{domain: domain, err: fmt.Errorf("peer reported status %q", resp.Status)}
				return
			}
			ch <- peerResult{domain: domain, results: tagRemote(resp.Results, domain)}
		}(target.Domain, peer, subQuery, target.Reason)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	var remote []search.Result
	var queried []graph.DomainID
	for i := 0; i < launched; i++ {
		pr, ok := <-ch
		if !ok {
			break
		}
		if pr.err != nil {
			c.logger.Warn("peer search failed", "domain", pr.domain, "err", pr.err)
			continue
		}
		queried = append(queried, pr.domain)
		remote = append(remote, pr.results...)
	}

	return remote, queried
}

// tagRemote marks results as collaborated and stamps their source domain.
func tagRemote(results []search.Result, domain graph.DomainID) []search.Result {
	tagged := make([]search.Result, len(results))
	for i, r := range results {
		r.Collaborated = true
		if r.SourceDomain == "" {
			r.SourceDomain = domain
		}
		stages := make([]search.Stage, len(r.Stages))
		for j, s := range r.Stages {
			stages[j] = s.Collaborated()
		}
		r.Stages = stages
		tagged[i] = r
	}
	return tagged
}
