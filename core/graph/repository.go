package graph

import (
	"context"
	"errors"
)

var (
	// ErrNodeNotFound is returned when a node identifier resolves to nothing.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDomainNotFound is returned when a domain identifier resolves to nothing.
	ErrDomainNotFound = errors.New("domain not found")
)

// Direction selects which edges GetNeighbors follows.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
	DirectionBoth
)

// NeighborOptions filters a neighbor lookup. Zero value means outgoing
// edges of every type.
type NeighborOptions struct {
	Direction Direction
	EdgeTypes []EdgeType
}

func (o NeighborOptions) wantsType(t EdgeType) bool {
	if len(o.EdgeTypes) == 0 {
		return true
	}
	for _, et := range o.EdgeTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Neighbor pairs a reachable node with the edge that reaches it.
type Neighbor struct {
	Node *Node
	Edge *Edge
}

// NodeHit is a scored node from a vector search.
type NodeHit struct {
	Node  *Node
	Score float64
}

// EdgeHit is a scored edge from a relationship-level vector search, with
// both endpoints resolved.
type EdgeHit struct {
	Edge  *Edge
	From  *Node
	To    *Node
	Score float64
}

// Repository is the persistence boundary the engines consume. The store
// exclusively owns persisted nodes, edges, and domains; every method is a
// read and must be safe for concurrent use.
type Repository interface {
	// GetNode returns the node for id or ErrNodeNotFound.
	GetNode(ctx context.Context, id NodeID) (*Node, error)

	// GetNeighbors returns the nodes adjacent to id under the given options.
	// Unresolvable endpoints are skipped, never fatal.
	GetNeighbors(ctx context.Context, id NodeID, opts NeighborOptions) ([]Neighbor, error)

	// VectorSearchNodes returns up to k nodes nearest to the query embedding,
	// scored by cosine similarity, descending. Nodes without embeddings are
	// excluded.
	VectorSearchNodes(ctx context.Context, query []float32, k int) ([]NodeHit, error)

	// VectorSearchEdges is VectorSearchNodes over edge embeddings.
	VectorSearchEdges(ctx context.Context, query []float32, k int) ([]EdgeHit, error)

	// GetDomains returns every known domain.
	GetDomains(ctx context.Context) ([]Domain, error)
}

// EmbeddingWriter is the optional write path a repository may expose for
// batch embedding persistence. Implementations follow a
// write-then-verify-then-retry-failed-subset discipline.
type EmbeddingWriter interface {
	// WriteEmbeddings persists the batch and returns the identifiers that
	// could not be verified after one retry of the failed subset.
	WriteEmbeddings(ctx context.Context, batch map[NodeID][]float32) (failed []NodeID, err error)
}
