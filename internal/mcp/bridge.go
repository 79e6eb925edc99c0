package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/payperwork/payperwork/internal/agent"
)

// toolCaller is the slice of the hub a bridged tool needs.
type toolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// HubTool adapts one MCP tool into the local agent tool interface so research
// and media agents can call external capabilities the same way they call
// built-in ones.
type HubTool struct {
	agent.BaseTool
	hub      toolCaller
	toolName string
}

// AgentTools wraps every advertised MCP tool as an agent tool.
func (h *Hub) AgentTools() []agent.Tool {
	tools := h.Tools()
	out := make([]agent.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, &HubTool{
			BaseTool: agent.NewBaseTool(t.Name, "mcp"),
			hub:      h,
			toolName: t.Name,
		})
	}
	return out
}

// Execute calls the remote tool. Text content is concatenated into the
// result's "content" field; the provider declaring IsError becomes a failed
// result, not an infrastructure error.
func (t *HubTool) Execute(ctx context.Context, input agent.Input) (*agent.Result, error) {
	res, err := t.hub.CallTool(ctx, t.toolName, input)
	if err != nil {
		return nil, err
	}

	// Inspect content generically; the concrete content types vary by
	// provider.
	contentBytes, _ := json.Marshal(res.Content)
	var contentList []map[string]interface{}
	_ = json.Unmarshal(contentBytes, &contentList)

	var sb strings.Builder
	for _, content := range contentList {
		kind, _ := content["type"].(string)
		switch kind {
		case "text":
			if text, ok := content["text"].(string); ok {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		case "image":
			sb.WriteString("[Image returned]\n")
		case "resource":
			sb.WriteString("[Resource returned]\n")
		}
	}
	text := strings.TrimRight(sb.String(), "\n")

	if res.IsError {
		return agent.Failure("tool %s: %s", t.toolName, text), nil
	}
	return &agent.Result{
		Success: true,
		Data:    map[string]interface{}{"content": text},
	}, nil
}
