// Package router scores every known domain against a query, combining
// centroid embedding similarity with a lexical keyword signal, and selects
// the top-N candidate domains for federation.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/akfldk1028/ARR-sub002/core/graph"
	"github.com/akfldk1028/ARR-sub002/core/vecmath"
)

// ErrNoDomains is returned when the repository reports no domains at all.
var ErrNoDomains = errors.New("no domains available")

// Embedder generates an embedding for query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScoredDomain is one routing candidate with its component signals.
type ScoredDomain struct {
	Domain   graph.Domain `json:"domain"`
	Centroid float64      `json:"centroid_score"`
	Lexical  float64      `json:"lexical_score"`
	Combined float64      `json:"combined_score"`
}

// Options tunes the router. Zero values fall back to defaults.
type Options struct {
	// CentroidWeight and LexicalWeight combine the two signals; they are
	// normalized to sum to 1.
	CentroidWeight float64
	LexicalWeight  float64

	// DomainTTL bounds how long the domain list is served before an async
	// refresh is triggered (stale-while-revalidate).
	DomainTTL time.Duration

	// RouteCacheTTL bounds cached per-query routing decisions.
	RouteCacheTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.CentroidWeight <= 0 && o.LexicalWeight <= 0 {
		o.CentroidWeight, o.LexicalWeight = 0.7, 0.3
	}
	total := o.CentroidWeight + o.LexicalWeight
	o.CentroidWeight /= total
	o.LexicalWeight /= total

	if o.DomainTTL <= 0 {
		o.DomainTTL = 5 * time.Minute
	}
	if o.RouteCacheTTL <= 0 {
		o.RouteCacheTTL = time.Minute
	}
	return o
}

// Router routes queries to domains. Domain metadata is cached per-process
// with a TTL and refreshed asynchronously; concurrent readers see the
// previous value during refresh.
type Router struct {
	repo     graph.Repository
	embedder Embedder
	opts     Options
	routes   *ristretto.Cache
	logger   *slog.Logger

	mu        sync.RWMutex
	domains   []graph.Domain
	fetchedAt time.Time
	refresh   singleflight.Group
}

// NewRouter creates a Router over the repository.
func NewRouter(repo graph.Repository, embedder Embedder, opts Options) (*Router, error) {
	routes, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("route cache: %w", err)
	}

	return &Router{
		repo:     repo,
		embedder: embedder,
		opts:     opts.withDefaults(),
		routes:   routes,
		logger:   slog.Default().With("component", "domain-router"),
	}, nil
}

// Close releases the route cache.
func (r *Router) Close() {
	r.routes.Close()
}

// RouteTopN returns the top n domains by combined score, descending. The
// highest-scoring domain is always included as primary even when n <= 0.
func (r *Router) RouteTopN(ctx context.Context, query string, n int) ([]ScoredDomain, error) {
	if n <= 0 {
		n = 1
	}

	cacheKey := fmt.Sprintf("%d|%s", n, query)
	if cached, ok := r.routes.Get(cacheKey); ok {
		if scored, ok := cached.([]ScoredDomain); ok {
			return scored, nil
		}
	}

	domains, err := r.domainList(ctx)
	if err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		return nil, ErrNoDomains
	}

	queryVec := r.embedQuery(ctx, query)
	scored := r.scoreAll(query, queryVec, domains)

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Combined != scored[j].Combined {
			return scored[i].Combined > scored[j].Combined
		}
		return scored[i].Domain.ID < scored[j].Domain.ID
	})

	if len(scored) > n {
		scored = scored[:n]
	}

	r.routes.SetWithTTL(cacheKey, scored, int64(len(scored)+1), r.opts.RouteCacheTTL)
	return scored, nil
}

// embedQuery is non-fatal: without an embedding the lexical signal alone
// routes the query.
func (r *Router) embedQuery(ctx context.Context, query string) []float32 {
	if r.embedder == nil {
		return nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Debug("query embedding failed, lexical-only routing", "err", err)
		return nil
	}
	return vec
}

func (r *Router) scoreAll(query string, queryVec []float32, domains []graph.Domain) []ScoredDomain {
	queryLower := strings.ToLower(query)

	scored := make([]ScoredDomain, 0, len(domains))
	for _, d := range domains {
		centroid := 0.0
		if len(queryVec) > 0 && len(d.Centroid) > 0 {
			centroid = vecmath.CosineSimilarity(queryVec, d.Centroid)
		}
		lexical := lexicalOverlap(queryLower, d.Keywords)

		scored = append(scored, ScoredDomain{
			Domain:   d,
			Centroid: centroid,
			Lexical:  lexical,
			Combined: r.opts.CentroidWeight*centroid + r.opts.LexicalWeight*lexical,
		})
	}
	return scored
}

// lexicalOverlap is the fraction of domain keywords found in the query as
// whole words.
func lexicalOverlap(queryLower string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	matches := 0
	for _, kw := range keywords {
		pattern := `\b` + regexp.QuoteMeta(strings.ToLower(kw)) + `\b`
		if matched, err := regexp.MatchString(pattern, queryLower); err == nil && matched {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}

// domainList serves the cached domain list, triggering an async refresh once
// the TTL has lapsed. Only the very first call blocks on the repository.
func (r *Router) domainList(ctx context.Context) ([]graph.Domain, error) {
	r.mu.RLock()
	domains := r.domains
	stale := time.Since(r.fetchedAt) > r.opts.DomainTTL
	r.mu.RUnlock()

	if domains == nil {
		fetched, err, _ := r.refresh.Do("domains", func() (any, error) {
			return r.refreshDomains(ctx)
		})
		if err != nil {
			return nil, err
		}
		return fetched.([]graph.Domain), nil
	}

	if stale {
		go func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err, _ := r.refresh.Do("domains", func() (any, error) {
				return r.refreshDomains(refreshCtx)
			})
			if err != nil {
				r.logger.Warn("async domain refresh failed", "err", err)
			}
		}()
	}

	return domains, nil
}

func (r *Router) refreshDomains(ctx context.Context) ([]graph.Domain, error) {
	domains, err := r.repo.GetDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("get domains: %w", err)
	}

	r.mu.Lock()
	r.domains = domains
	r.fetchedAt = time.Now()
	r.mu.Unlock()

	return domains, nil
}
