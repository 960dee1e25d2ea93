package collab

import "context"

// HeuristicDecider gates collaboration on local result quality: too few
// results, or a weak top score, plus at least one plausible peer domain.
type HeuristicDecider struct {
	// MinResults is the result count below which collaboration triggers.
	MinResults int
	// MinTopScore is the fused-score floor for the best local result.
	MinTopScore float64
	// MinCandidateScore filters which routing candidates become targets.
	MinCandidateScore float64
}

// NewHeuristicDecider returns a decider with sensible thresholds.
func NewHeuristicDecider() *HeuristicDecider {
	return &HeuristicDecider{
		MinResults:        3,
		MinTopScore:       0.02,
		MinCandidateScore: 0.25,
	}
}

func (h *HeuristicDecider) Decide(_ context.Context, req DecisionRequest) (Decision, error) {
	weak := req.ResultCount < h.MinResults || req.TopScore < h.MinTopScore
	if !weak {
		return Decision{Reason: "local results sufficient"}, nil
	}

	targets := candidateTargets(req, h.MinCandidateScore, "routing score above threshold")
	if len(targets) == 0 {
		return Decision{Reason: "no viable peer domains"}, nil
	}

	return Decision{
		Collaborate: true,
		Targets:     targets,
		Reason:      "local results insufficient",
	}, nil
}
