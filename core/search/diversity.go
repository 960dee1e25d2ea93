package search

// DiversityInterleave re-ranks an already-fused list so one dominant
// document sub-type cannot monopolize the top slots: results are grouped by
// sub-type preserving their fused order, then interleaved round-robin across
// groups and truncated to limit.
//
// Interleaving after fusion preserves the source system's behavior; it is a
// tunable policy (see config), not a fixed law.
func DiversityInterleave(results []Result, limit int) []Result {
	if limit <= 0 || len(results) == 0 {
		return results
	}

	groups, order := groupBySubType(results)
	if len(groups) <= 1 {
		if len(results) > limit {
			return results[:limit]
		}
		return results
	}

	out := make([]Result, 0, limit)
	for len(out) < limit {
		advanced := false
		for _, key := range order {
			group := groups[key]
			if len(group) == 0 {
				continue
			}
			out = append(out, group[0])
			groups[key] = group[1:]
			advanced = true
			if len(out) == limit {
				break
			}
		}
		if !advanced {
			break
		}
	}

	return out
}

// groupBySubType buckets results by sub-type, keeping group discovery order
// (the order of the first, highest-ranked member) so interleaving starts
// from the strongest group.
func groupBySubType(results []Result) (map[string][]Result, []string) {
	groups := make(map[string][]Result)
	var order []string

	for _, r := range results {
		key := r.SubType
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	return groups, order
}

// Truncate caps the list at limit without re-ranking.
func Truncate(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
