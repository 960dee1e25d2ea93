package graph

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
}

func TestRule_MatchesActor(t *testing.T) {
	busOnly := Rule{Kind: RulePenalty, ExemptActorPattern: "bus", Delta: 300}

	assert.True(t, busOnly.Matches(RequestContext{ActorCategory: "car"}))
	assert.False(t, busOnly.Matches(RequestContext{ActorCategory: "bus"}))
}

func TestRule_MatchesActorGlob(t *testing.T) {
	noTrucks := Rule{Kind: RuleBlock, ActorPattern: "truck*"}

	assert.True(t, noTrucks.Matches(RequestContext{ActorCategory: "truck-heavy"}))
	assert.False(t, noTrucks.Matches(RequestContext{ActorCategory: "car"}))
}

func TestRule_MatchesWindow(t *testing.T) {
	daytime := Rule{Kind: RuleBlock, WindowStart: 7 * 60, WindowEnd: 19 * 60}

	assert.True(t, daytime.Matches(RequestContext{At: at(12, 0)}))
	assert.False(t, daytime.Matches(RequestContext{At: at(22, 0)}))
}

func TestRule_MatchesWindowWrapsMidnight(t *testing.T) {
	// 22:00-06:00 spans midnight: match if t >= start OR t <= end.
	night := Rule{Kind: RuleBlock, WindowStart: 22 * 60, WindowEnd: 6 * 60}

	assert.True(t, night.Matches(RequestContext{At: at(23, 30)}))
	assert.True(t, night.Matches(RequestContext{At: at(2, 0)}))
	assert.False(t, night.Matches(RequestContext{At: at(12, 0)}))
}

func TestRule_MatchesWeightAndPermit(t *testing.T) {
	overweight := Rule{Kind: RulePenalty, MaxWeight: 3500, Delta: 100}
	assert.True(t, overweight.Matches(RequestContext{Weight: 5000}))
	assert.False(t, overweight.Matches(RequestContext{Weight: 3500}))

	permitRequired := Rule{Kind: RuleBlock, RequiredPermit: "hazmat"}
	assert.True(t, permitRequired.Matches(RequestContext{}))
	assert.False(t, permitRequired.Matches(RequestContext{Permits: []string{"hazmat"}}))
}

func TestRule_UnsetWindowAlwaysMatches(t *testing.T) {
	r := Rule{Kind: RulePenalty, Delta: 10}
	assert.True(t, r.Matches(RequestContext{At: at(3, 0)}))

	explicit := Rule{Kind: RulePenalty, Delta: 10, WindowStart: NoWindow, WindowEnd: NoWindow}
	assert.True(t, explicit.Matches(RequestContext{At: at(3, 0)}))
}

func TestEdge_EffectiveCost_Block(t *testing.T) {
	e := &Edge{BaseCost: 100, Rules: []Rule{{Kind: RuleBlock, ActorPattern: "car"}}}

	cost, blocked := e.EffectiveCost(RequestContext{ActorCategory: "car"})
	assert.True(t, blocked)
	assert.True(t, math.IsInf(cost, 1))

	cost, blocked = e.EffectiveCost(RequestContext{ActorCategory: "bus"})
	assert.False(t, blocked)
	assert.Equal(t, 100.0, cost)
}

func TestEdge_EffectiveCost_PenaltiesSum(t *testing.T) {
	e := &Edge{
		BaseCost: 100,
		Rules: []Rule{
			{Kind: RulePenalty, Delta: 25},
			{Kind: RulePenalty, Delta: 75},
		},
	}

	cost, blocked := e.EffectiveCost(RequestContext{ActorCategory: "car"})
	assert.False(t, blocked)
	assert.Equal(t, 200.0, cost)
}
