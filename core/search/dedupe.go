package search

import "sort"

// Dedupe collapses results sharing a node identifier, keeping the occurrence
// with the highest fused score and merging provenance tags into it. The
// operation is idempotent: deduplicating an already-deduplicated list is a
// no-op. Relative order of the kept occurrences is preserved.
func Dedupe(results []Result) []Result {
	byNode := make(map[string]int)
	out := make([]Result, 0, len(results))

	for _, r := range results {
		key := string(r.NodeID)
		idx, ok := byNode[key]
		if !ok {
			byNode[key] = len(out)
			out = append(out, r)
			continue
		}

		kept := out[idx]
		if r.FusedScore > kept.FusedScore {
			winner := r
			winner.Stages = mergeStages(r.Stages, kept.Stages)
			winner.Collaborated = r.Collaborated || kept.Collaborated
			out[idx] = winner
		} else {
			kept.Stages = mergeStages(kept.Stages, r.Stages)
			kept.Collaborated = kept.Collaborated || r.Collaborated
			out[idx] = kept
		}
	}

	return out
}

// DedupePreferDomain collapses duplicates preferring the copy from the given
// domain on collision regardless of score; used when merging collaboration
// results back so the primary domain's copy wins.
func DedupePreferDomain(results []Result, preferred string) []Result {
	byNode := make(map[string]int)
	out := make([]Result, 0, len(results))

	for _, r := range results {
		key := string(r.NodeID)
		idx, ok := byNode[key]
		if !ok {
			byNode[key] = len(out)
			out = append(out, r)
			continue
		}

		kept := out[idx]
		keepExisting := string(kept.SourceDomain) == preferred || string(r.SourceDomain) != preferred

		if keepExisting {
			kept.Stages = mergeStages(kept.Stages, r.Stages)
			out[idx] = kept
		} else {
			winner := r
			winner.Stages = mergeStages(r.Stages, kept.Stages)
			out[idx] = winner
		}
	}

	return out
}

// SortByFusedScore orders results by fused score descending with the same
// deterministic tie-breaks fusion uses.
func SortByFusedScore(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].NodeID < results[j].NodeID
	})
}
