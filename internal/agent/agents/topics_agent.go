package agents

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/payperwork/payperwork/internal/agent"
	"github.com/payperwork/payperwork/internal/llm"
)

const topicsSystemPrompt = `You are a presentation planner. Given a brief, produce a JSON array of 5-8 topic strings covering the presentation, most important first. Respond with the JSON array only.`

// TopicsAgent turns a user prompt into an ordered topic plan.
type TopicsAgent struct {
	agent.BaseAgent
	client *llm.Client
}

// NewTopicsAgent creates the agent.
func NewTopicsAgent(client *llm.Client) *TopicsAgent {
	return &TopicsAgent{
		BaseAgent: agent.NewBaseAgent("topics", "1.0", "generates the topic plan for a presentation"),
		client:    client,
	}
}

func (a *TopicsAgent) Execute(ctx context.Context, input agent.Input) (*agent.Result, error) {
	prompt, _ := input["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return agent.Failure("topics: missing prompt"), nil
	}

	messages := llm.TrimToBudget([]llm.Message{
		{Role: "system", Content: topicsSystemPrompt},
		{Role: "user", Content: prompt},
	}, 8000)

	reply, err := a.client.Complete(ctx, messages, 1024)
	if err != nil {
		return agent.Failure("topics: %v", err), nil
	}

	topics := parseTopics(reply)
	if len(topics) == 0 {
		return agent.Failure("topics: provider returned no usable topics"), nil
	}

	return &agent.Result{
		Success: true,
		Data:    map[string]interface{}{"topics": topics},
	}, nil
}

// parseTopics accepts a JSON array or falls back to line splitting, since
// providers occasionally wrap the array in prose or code fences.
func parseTopics(reply string) []string {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var topics []string
	if err := json.Unmarshal([]byte(cleaned), &topics); err == nil {
		return normalizeTopics(topics)
	}

	var lines []string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return normalizeTopics(lines)
}

func normalizeTopics(topics []string) []string {
	out := topics[:0]
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
