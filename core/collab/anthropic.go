package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/akfldk1028/ARR-sub002/core/graph"
)

const decisionSystemPrompt = `You are a routing assistant for a federated legal search system.
Given a user query, the primary domain that answered it, a preview of the
local results, and the list of candidate domains with routing scores, decide
whether querying additional domains would improve the answer.

Respond with ONLY a JSON object, no prose:
{"collaborate": bool, "targets": [{"domain": "...", "query": "...", "reason": "..."}], "reason": "..."}

For each target, "query" is the sub-query rephrased for that domain's
vocabulary; leave it empty to reuse the original query.
Only choose targets from the candidate list. Prefer at most two targets.`

// Decision quality matters less than latency here, so default to the
// smallest model.
const defaultDecisionModel = "claude-haiku-4-5-20251001"

// AnthropicConfig configures the LLM decision gate.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
}

// AnthropicDecider gates collaboration with a Claude model. It is meant to
// be wrapped by the coordinator's timeout so a slow model never stalls a
// search.
type AnthropicDecider struct {
	client *anthropic.Client
	config AnthropicConfig
}

// NewAnthropicDecider creates the LLM-backed decision gate.
func NewAnthropicDecider(config AnthropicConfig) (*AnthropicDecider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic decider: API key required")
	}
	if config.Model == "" {
		config.Model = defaultDecisionModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 512
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicDecider{client: &client, config: config}, nil
}

func (d *AnthropicDecider) Decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	prompt, err := json.Marshal(req)
	if err != nil {
		return Decision{}, fmt.Errorf("marshal decision request: %w", err)
	}

	msg, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(d.config.Model),
		MaxTokens: int64(d.config.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: decisionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(prompt))),
		},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("anthropic decide: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}

	decision, err := parseDecision(content)
	if err != nil {
		return Decision{}, err
	}
	return sanitizeDecision(decision, req), nil
}

// parseDecision tolerates models that wrap the JSON in code fences.
func parseDecision(content string) (Decision, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			content = content[start : end+1]
		}
	}

	var decision Decision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return Decision{}, fmt.Errorf("parse decision: %w", err)
	}
	return decision, nil
}

// sanitizeDecision drops hallucinated targets not in the candidate list and
// never lets the model target the primary domain.
func sanitizeDecision(decision Decision, req DecisionRequest) Decision {
	known := make(map[graph.DomainID]bool, len(req.Candidates))
	for _, c := range req.Candidates {
		known[c.Domain.ID] = true
	}

	var targets []Target
	for _, t := range decision.Targets {
		if t.Domain == req.PrimaryDomain || !known[t.Domain] {
			continue
		}
		targets = append(targets, t)
	}
	decision.Targets = targets
	if len(targets) == 0 {
		decision.Collaborate = false
	}
	return decision
}
