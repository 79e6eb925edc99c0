package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/payperwork/payperwork/internal/agent"
	"github.com/payperwork/payperwork/internal/llm"
)

const researchSystemPrompt = `You are a research assistant for presentation authors. Expand the brief into 3-5 short paragraphs of factual background an author would want on hand. Plain text only.`

// ResearchAgent enriches a raw prompt with background material before
// planning. Optional in most plans; the topics agent accepts its output.
// Attached tools (MCP-backed search, fetchers) are queried first and their
// findings are folded into the brief sent to the model.
type ResearchAgent struct {
	agent.BaseAgent
	client *llm.Client
	tools  []agent.Tool
}

// NewResearchAgent creates the agent. Tools are optional.
func NewResearchAgent(client *llm.Client, tools ...agent.Tool) *ResearchAgent {
	return &ResearchAgent{
		BaseAgent: agent.NewBaseAgent("research", "1.0", "expands a brief with background material"),
		client:    client,
		tools:     tools,
	}
}

func (a *ResearchAgent) Execute(ctx context.Context, input agent.Input) (*agent.Result, error) {
	prompt, _ := input["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return agent.Failure("research: missing prompt"), nil
	}

	user := prompt
	if findings := a.collectFindings(ctx, prompt); findings != "" {
		user = prompt + "\n\nTool findings:\n" + findings
	}

	messages := llm.TrimToBudget([]llm.Message{
		{Role: "system", Content: researchSystemPrompt},
		{Role: "user", Content: user},
	}, 8000)

	reply, err := a.client.Complete(ctx, messages, 1024)
	if err != nil {
		return agent.Failure("research: %v", err), nil
	}

	return &agent.Result{
		Success: true,
		Data: map[string]interface{}{
			"brief": strings.TrimSpace(reply),
		},
	}, nil
}

// collectFindings queries every attached tool with the brief. A failing tool
// is skipped; research degrades to the bare prompt.
func (a *ResearchAgent) collectFindings(ctx context.Context, prompt string) string {
	var sb strings.Builder
	for _, t := range a.tools {
		res := agent.Invoke(ctx, t, agent.Input{"query": prompt})
		if !res.Success {
			continue
		}
		content, _ := res.Data["content"].(string)
		if content == "" {
			continue
		}
		fmt.Fprintf(&sb, "[%s]\n%s\n", t.Name(), content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
