// Package search implements hybrid search orchestration: exact, vector,
// relationship, and graph-expansion stages run concurrently, fused with
// reciprocal rank fusion, deduplicated, and diversity re-ranked.
package search

import (
	"unicode/utf8"

	"github.com/akfldk1028/ARR-sub002/core/graph"
)

// Stage tags the provenance of a result.
type Stage string

const (
	StageExact         Stage = "exact"
	StageVector        Stage = "vector"
	StageRelationship  Stage = "relationship"
	StageGraphSeed     Stage = "graph-expansion-seed"
	StageGraphNeighbor Stage = "graph-expansion-neighbor"
)

// Collaborated returns the A2A-tagged variant of the stage, used when a
// result arrived through a collaborating domain agent.
func (s Stage) Collaborated() Stage {
	return "a2a:" + s
}

// Result is a single query-time search hit. Results are created once per
// stage and never mutated afterwards; fusion builds fresh merged values.
type Result struct {
	NodeID       graph.NodeID   `json:"node_id"`
	Snippet      string         `json:"snippet,omitempty"`
	SubType      string         `json:"sub_type,omitempty"`
	Similarity   float64        `json:"similarity"`
	FusedScore   float64        `json:"fused_score,omitempty"`
	Stages       []Stage        `json:"stages"`
	SourceDomain graph.DomainID `json:"source_domain,omitempty"`
	Collaborated bool           `json:"collaborated,omitempty"`
}

// HasStage reports whether the result carries the given provenance tag.
func (r Result) HasStage(s Stage) bool {
	for _, st := range r.Stages {
		if st == s {
			return true
		}
	}
	return false
}

func mergeStages(a, b []Stage) []Stage {
	seen := make(map[Stage]bool, len(a)+len(b))
	out := make([]Stage, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

const maxSnippetLen = 200

// snippet truncates on a rune boundary so multi-byte text stays valid UTF-8.
func snippet(content string) string {
	if len(content) <= maxSnippetLen {
		return content
	}
	cut := maxSnippetLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

func resultFromNode(n *graph.Node, score float64, stage Stage) Result {
	return Result{
		NodeID:       n.ID,
		Snippet:      snippet(n.Content),
		SubType:      n.SubType,
		Similarity:   score,
		Stages:       []Stage{stage},
		SourceDomain: n.Domain,
	}
}
