package search

import "sort"

// defaultRRFK is the standard reciprocal rank fusion constant.
const defaultRRFK = 60

// RRFFusion combines per-stage ranked lists with reciprocal rank fusion:
// a node's fused score is the sum over lists containing it of 1/(k + rank),
// rank 1-indexed. Nodes appearing in several lists therefore outrank nodes
// in a single list.
type RRFFusion struct {
	k int
}

// NewRRFFusion creates a fusion with the given k; k <= 0 uses the default.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = defaultRRFK
	}
	return &RRFFusion{k: k}
}

// K returns the RRF constant.
func (f *RRFFusion) K() int {
	return f.k
}

// Fuse merges the ranked lists into a single list ordered by fused score
// descending. Occurrences of the same node are merged: provenance tags
// union, highest raw similarity kept. Ties on fused score break toward
// higher raw similarity, then node ID for determinism.
func (f *RRFFusion) Fuse(lists ...[]Result) []Result {
	merged := make(map[string]*Result)
	scores := make(map[string]float64)

	for _, list := range lists {
		for rank, r := range list {
			key := string(r.NodeID)
			scores[key] += 1.0 / float64(f.k+rank+1)

			if existing, ok := merged[key]; ok {
				combined := *existing
				combined.Stages = mergeStages(existing.Stages, r.Stages)
				if r.Similarity > combined.Similarity {
					combined.Similarity = r.Similarity
				}
				if combined.Snippet == "" {
					combined.Snippet = r.Snippet
				}
				if combined.SubType == "" {
					combined.SubType = r.SubType
				}
				combined.Collaborated = combined.Collaborated || r.Collaborated
				merged[key] = &combined
			} else {
				fresh := r
				fresh.Stages = mergeStages(nil, r.Stages)
				merged[key] = &fresh
			}
		}
	}

	results := make([]Result, 0, len(merged))
	for key, r := range merged {
		fused := *r
		fused.FusedScore = scores[key]
		results = append(results, fused)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].NodeID < results[j].NodeID
	})

	return results
}
