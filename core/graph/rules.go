package graph

import (
	"math"

	"github.com/gobwas/glob"
)

// RuleKind distinguishes blocking rules from additive penalty rules.
type RuleKind int

const (
	// RuleBlock makes a matching edge untraversable (infinite cost).
	RuleBlock RuleKind = iota

	// RulePenalty adds Delta to the edge's base cost when matching.
	RulePenalty
)

var ruleKindNames = map[RuleKind]string{
	RuleBlock:   "block",
	RulePenalty: "penalty",
}

func (k RuleKind) String() string {
	if name, ok := ruleKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// NoWindow marks an unset time-window bound.
const NoWindow = -1

// Rule is a regulation attached to an edge. A rule whose predicate matches
// the request context applies its effect: RuleBlock yields +Inf cost,
// RulePenalty adds Delta. All predicate fields are conjunctive; unset fields
// always match.
//
// ActorPattern and ExemptActorPattern are glob patterns over the actor
// category ("bus", "truck*"). ExemptActorPattern carves out actors the rule
// does not apply to, which is how "X only" regulations are expressed: a
// busOnly penalty is ExemptActorPattern "bus".
type Rule struct {
	Name               string   `json:"name"`
	Kind               RuleKind `json:"kind"`
	ActorPattern       string   `json:"actor_pattern,omitempty"`
	ExemptActorPattern string   `json:"exempt_actor_pattern,omitempty"`

	// WindowStart/WindowEnd bound applicability to minutes-of-day. A window
	// with start > end wraps midnight: match if t >= start OR t <= end.
	WindowStart int `json:"window_start"`
	WindowEnd   int `json:"window_end"`

	// MaxWeight, when positive, matches contexts whose weight exceeds it.
	MaxWeight float64 `json:"max_weight,omitempty"`

	// RequiredPermit, when set, matches contexts lacking the permit.
	RequiredPermit string `json:"required_permit,omitempty"`

	// Delta is the additive cost for RulePenalty. Ignored for RuleBlock.
	Delta float64 `json:"delta,omitempty"`
}

// Matches reports whether the rule's predicate holds for the context,
// i.e. whether the rule's effect applies to this request.
func (r Rule) Matches(rc RequestContext) bool {
	if !r.matchesActor(rc.ActorCategory) {
		return false
	}
	if !r.matchesWindow(rc) {
		return false
	}
	if r.MaxWeight > 0 && rc.Weight <= r.MaxWeight {
		return false
	}
	if r.RequiredPermit != "" && rc.HasPermit(r.RequiredPermit) {
		return false
	}
	return true
}

func (r Rule) matchesActor(actor string) bool {
	if r.ExemptActorPattern != "" && globMatch(r.ExemptActorPattern, actor) {
		return false
	}
	if r.ActorPattern == "" {
		return true
	}
	return globMatch(r.ActorPattern, actor)
}

func (r Rule) matchesWindow(rc RequestContext) bool {
	if r.WindowStart == NoWindow || r.WindowEnd == NoWindow {
		return true
	}
	if r.WindowStart == 0 && r.WindowEnd == 0 {
		return true // no window configured
	}
	if rc.At.IsZero() {
		return true
	}

	minute := rc.At.Hour()*60 + rc.At.Minute()
	if r.WindowStart <= r.WindowEnd {
		return minute >= r.WindowStart && minute <= r.WindowEnd
	}
	// Window spans midnight.
	return minute >= r.WindowStart || minute <= r.WindowEnd
}

func globMatch(pattern, value string) bool {
	g, err := glob.Compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(value)
}

// EffectiveCost applies every rule bound to the edge against the context and
// returns the resulting traversal cost. A matching blocking rule returns
// (+Inf, true); matching penalty rules are summed onto the base cost.
func (e *Edge) EffectiveCost(rc RequestContext) (cost float64, blocked bool) {
	cost = e.BaseCost
	for _, r := range e.Rules {
		if !r.Matches(rc) {
			continue
		}
		if r.Kind == RuleBlock {
			return math.Inf(1), true
		}
		cost += r.Delta
	}
	return cost, false
}
