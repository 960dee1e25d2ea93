package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/akfldk1028/ARR-sub002/core/vecmath"
)

// MemoryRepository is an in-memory Repository backed by adjacency maps and
// brute-force vector scans. It serves tests and small corpora; larger graphs
// use the sqlitegraph adapter.
type MemoryRepository struct {
	mu       sync.RWMutex
	nodes    map[NodeID]*Node
	outgoing map[NodeID][]*Edge
	incoming map[NodeID][]*Edge
	domains  map[DomainID]Domain
	nextEdge int64
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nodes:    make(map[NodeID]*Node),
		outgoing: make(map[NodeID][]*Edge),
		incoming: make(map[NodeID][]*Edge),
		domains:  make(map[DomainID]Domain),
	}
}

// AddNode inserts or replaces a node.
func (r *MemoryRepository) AddNode(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.ID] = n
}

// AddEdge inserts an edge, assigning it an identifier.
func (r *MemoryRepository) AddEdge(e *Edge) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEdge++
	e.ID = r.nextEdge
	r.outgoing[e.SourceID] = append(r.outgoing[e.SourceID], e)
	r.incoming[e.TargetID] = append(r.incoming[e.TargetID], e)
}

// AddDomain inserts or replaces a domain.
func (r *MemoryRepository) AddDomain(d Domain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains[d.ID] = d
}

// ListNodes returns every node sorted by ID, for bulk consumers like index
// builders.
func (r *MemoryRepository) ListNodes(ctx context.Context) ([]*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// GetNode implements Repository.
func (r *MemoryRepository) GetNode(ctx context.Context, id NodeID) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return node, nil
}

// GetNeighbors implements Repository.
func (r *MemoryRepository) GetNeighbors(ctx context.Context, id NodeID, opts NeighborOptions) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var neighbors []Neighbor
	if opts.Direction == DirectionOutgoing || opts.Direction == DirectionBoth {
		neighbors = append(neighbors, r.collect(r.outgoing[id], opts, false)...)
	}
	if opts.Direction == DirectionIncoming || opts.Direction == DirectionBoth {
		neighbors = append(neighbors, r.collect(r.incoming[id], opts, true)...)
	}
	return neighbors, nil
}

func (r *MemoryRepository) collect(edges []*Edge, opts NeighborOptions, incoming bool) []Neighbor {
	var out []Neighbor
	for _, e := range edges {
		if !opts.wantsType(e.Type) {
			continue
		}
		otherID := e.TargetID
		if incoming {
			otherID = e.SourceID
		}
		node, ok := r.nodes[otherID]
		if !ok {
			continue // dangling edge, treated as no edge
		}
		out = append(out, Neighbor{Node: node, Edge: e})
	}
	return out
}

// VectorSearchNodes implements Repository with a full scan.
func (r *MemoryRepository) VectorSearchNodes(ctx context.Context, query []float32, k int) ([]NodeHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hits := make([]NodeHit, 0, len(r.nodes))
	for _, n := range r.nodes {
		if !n.HasEmbedding() {
			continue
		}
		hits = append(hits, NodeHit{Node: n, Score: vecmath.CosineSimilarity(query, n.Embedding)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Node.ID < hits[j].Node.ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// VectorSearchEdges implements Repository with a full scan.
func (r *MemoryRepository) VectorSearchEdges(ctx context.Context, query []float32, k int) ([]EdgeHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var hits []EdgeHit
	for _, edges := range r.outgoing {
		for _, e := range edges {
			if !e.HasEmbedding() {
				continue
			}
			from, okFrom := r.nodes[e.SourceID]
			to, okTo := r.nodes[e.TargetID]
			if !okFrom || !okTo {
				continue
			}
			hits = append(hits, EdgeHit{
				Edge:  e,
				From:  from,
				To:    to,
				Score: vecmath.CosineSimilarity(query, e.Embedding),
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Edge.ID < hits[j].Edge.ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// GetDomains implements Repository.
func (r *MemoryRepository) GetDomains(ctx context.Context) ([]Domain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	domains := make([]Domain, 0, len(r.domains))
	for _, d := range r.domains {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].ID < domains[j].ID })
	return domains, nil
}

// WriteEmbeddings implements EmbeddingWriter. The in-memory store cannot
// partially fail, so verification always passes.
func (r *MemoryRepository) WriteEmbeddings(ctx context.Context, batch map[NodeID][]float32) ([]NodeID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []NodeID
	for id, vec := range batch {
		node, ok := r.nodes[id]
		if !ok {
			failed = append(failed, id)
			continue
		}
		node.Embedding = vec
	}
	return failed, nil
}
