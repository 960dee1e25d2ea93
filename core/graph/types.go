// Package graph defines the hierarchical document graph model: units of legal
// text (document down to item), typed edges between them, the regulation rules
// attached to edges, and the repository interface the engines consume.
package graph

import (
	"strings"
	"time"
)

// =============================================================================
// Unit Levels
// =============================================================================

// UnitLevel is the position of a node in the document hierarchy.
type UnitLevel int

const (
	LevelDocument UnitLevel = iota
	LevelChapter
	LevelSection
	LevelArticle
	LevelParagraph
	LevelItem
)

var levelNames = map[UnitLevel]string{
	LevelDocument:  "document",
	LevelChapter:   "chapter",
	LevelSection:   "section",
	LevelArticle:   "article",
	LevelParagraph: "paragraph",
	LevelItem:      "item",
}

func (l UnitLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// IsLeaf reports whether the level can carry its own text content.
// Structural levels aggregate children for their embedding instead.
func (l UnitLevel) IsLeaf() bool {
	return l == LevelParagraph || l == LevelItem
}

// =============================================================================
// Nodes
// =============================================================================

// NodeID is a hierarchical path identifier, e.g.
// "RoadTrafficAct::Chapter4::Article36::Para2". The identifier is globally
// unique and encodes ancestry.
type NodeID string

// PathSegments splits the identifier into its ancestor labels.
func (id NodeID) PathSegments() []string {
	return strings.Split(string(id), "::")
}

// Node is a single unit in the document graph.
type Node struct {
	ID        NodeID    `json:"id"`
	Level     UnitLevel `json:"level"`
	Content   string    `json:"content,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Path      []string  `json:"path,omitempty"`
	Ordinal   int       `json:"ordinal"`
	SubType   string    `json:"sub_type,omitempty"`
	Domain    DomainID  `json:"domain,omitempty"`
}

// HasEmbedding reports whether the node carries a usable embedding.
// Nodes without one are excluded from similarity scoring, never treated
// as zero-similarity matches.
func (n *Node) HasEmbedding() bool {
	return n != nil && len(n.Embedding) > 0
}

// =============================================================================
// Edges
// =============================================================================

// EdgeType classifies a directed relation between two nodes.
type EdgeType string

const (
	EdgeContains EdgeType = "CONTAINS"
	EdgeNext     EdgeType = "NEXT"
	EdgeCites    EdgeType = "CITES"
)

// IsValid returns true for the built-in edge types. Domain-specific types
// are permitted; this only identifies the reserved ones.
func (t EdgeType) IsValid() bool {
	switch t {
	case EdgeContains, EdgeNext, EdgeCites:
		return true
	default:
		return false
	}
}

func (t EdgeType) String() string {
	return string(t)
}

// Edge is a directed, typed relation carrying an optional traversal cost,
// an optional embedding for relationship-level search, and the rules that
// modify its cost per request.
type Edge struct {
	ID        int64     `json:"id"`
	SourceID  NodeID    `json:"source_id"`
	TargetID  NodeID    `json:"target_id"`
	Type      EdgeType  `json:"type"`
	BaseCost  float64   `json:"base_cost"`
	Embedding []float32 `json:"embedding,omitempty"`
	Rules     []Rule    `json:"rules,omitempty"`
}

// HasEmbedding reports whether the edge carries a usable embedding.
func (e *Edge) HasEmbedding() bool {
	return e != nil && len(e.Embedding) > 0
}

// =============================================================================
// Request Context
// =============================================================================

// RequestContext carries the caller-supplied situational parameters rules are
// evaluated against. Immutable for the lifetime of a request.
type RequestContext struct {
	ActorCategory string
	At            time.Time
	Weight        float64
	Permits       []string
}

// HasPermit reports whether the context holds the named permit.
func (rc RequestContext) HasPermit(name string) bool {
	for _, p := range rc.Permits {
		if p == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Domains
// =============================================================================

// DomainID names a topical cluster of nodes served by one logical agent.
type DomainID string

func (d DomainID) String() string {
	return string(d)
}

// Domain is a named cluster of nodes with a centroid embedding. A node
// belongs to exactly one domain at a time.
type Domain struct {
	ID        DomainID  `json:"id"`
	Centroid  []float32 `json:"centroid,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	NodeCount int       `json:"node_count"`
}
