package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/payperwork/payperwork/internal/agent"
	"github.com/payperwork/payperwork/internal/llm"
)

const slidesSystemPrompt = `You are a presentation writer. Given a list of topics, produce a JSON array of slide objects: {"title": string, "bullets": [string]}. One slide per topic plus a title slide. Respond with the JSON array only.`

// SlideOutline is one planned slide.
type SlideOutline struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets"`
}

// SlidesAgent expands a topic plan into slide outlines. It expects the
// orchestrator to inject the topics step's output under "topics".
type SlidesAgent struct {
	agent.BaseAgent
	client *llm.Client
}

// NewSlidesAgent creates the agent.
func NewSlidesAgent(client *llm.Client) *SlidesAgent {
	return &SlidesAgent{
		BaseAgent: agent.NewBaseAgent("slides", "1.0", "expands topics into slide outlines"),
		client:    client,
	}
}

func (a *SlidesAgent) Execute(ctx context.Context, input agent.Input) (*agent.Result, error) {
	topics := topicsFromInput(input)
	if len(topics) == 0 {
		return agent.Failure("slides: no topics in input"), nil
	}

	messages := []llm.Message{
		{Role: "system", Content: slidesSystemPrompt},
		{Role: "user", Content: "Topics:\n- " + strings.Join(topics, "\n- ")},
	}

	reply, err := a.client.Complete(ctx, messages, 2048)
	if err != nil {
		return agent.Failure("slides: %v", err), nil
	}

	outlines, err := parseOutlines(reply)
	if err != nil {
		return agent.Failure("slides: %v", err), nil
	}

	return &agent.Result{
		Success: true,
		Data: map[string]interface{}{
			"slides":       outlines,
			"slides_count": len(outlines),
		},
	}, nil
}

// topicsFromInput handles both the direct form ([]string) and the
// orchestrator-injected form (the topics step's Data map).
func topicsFromInput(input agent.Input) []string {
	switch v := input["topics"].(type) {
	case []string:
		return v
	case []interface{}:
		var topics []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				topics = append(topics, s)
			}
		}
		return topics
	case map[string]interface{}:
		nested := agent.Input(v)
		if _, again := nested["topics"].(map[string]interface{}); again {
			return nil
		}
		return topicsFromInput(nested)
	}
	return nil
}

func parseOutlines(reply string) ([]SlideOutline, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var outlines []SlideOutline
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &outlines); err != nil {
		return nil, fmt.Errorf("unparseable slide outlines: %w", err)
	}
	if len(outlines) == 0 {
		return nil, fmt.Errorf("provider returned no slides")
	}
	return outlines, nil
}
