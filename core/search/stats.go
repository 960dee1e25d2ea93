package search

import (
	"sync"
	"time"

	"github.com/akfldk1028/ARR-sub002/core/graph"
)

// StageStats records what actually ran for one hybrid search: which stages
// contributed, which failed, and how long the whole call took. Required for
// downstream observability and testing.
type StageStats struct {
	QueryID     string           `json:"query_id"`
	Domain      graph.DomainID   `json:"domain"`
	StageCounts map[Stage]int    `json:"per_stage_counts"`
	StageErrors map[Stage]string `json:"stage_errors,omitempty"`
	Latency     time.Duration    `json:"latency"`

	mu sync.Mutex
}

func newStageStats(queryID string, domain graph.DomainID) *StageStats {
	return &StageStats{
		QueryID:     queryID,
		Domain:      domain,
		StageCounts: make(map[Stage]int),
		StageErrors: make(map[Stage]string),
	}
}

func (s *StageStats) record(stage Stage, count int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.StageErrors[stage] = err.Error()
		return
	}
	s.StageCounts[stage] = count
}

// Contributed reports whether the stage produced at least one result.
func (s *StageStats) Contributed(stage Stage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StageCounts[stage] > 0
}

// FailedStages returns the stages that errored.
func (s *StageStats) FailedStages() []Stage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Stage, 0, len(s.StageErrors))
	for stage := range s.StageErrors {
		out = append(out, stage)
	}
	return out
}
