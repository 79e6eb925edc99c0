// Package mcp connects to external MCP servers and exposes their tools to
// local agents. Servers are spawned over stdio from a settings file.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Connection is one live MCP server with its advertised tools.
type Connection struct {
	Name   string
	Client *client.Client
	Tools  []mcp.Tool
}

// Hub manages connections to multiple MCP servers.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{connections: make(map[string]*Connection)}
}

// LoadSettings connects every enabled server from a settings file. Servers
// that fail to start are logged and skipped; one broken entry must not take
// down the rest.
func (h *Hub) LoadSettings(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read mcp settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("parse mcp settings: %w", err)
	}

	for name, cfg := range settings.Servers {
		if cfg.Disabled {
			continue
		}
		if err := h.Connect(ctx, name, cfg); err != nil {
			log.Printf("[MCP] connect %s: %v", name, err)
		}
	}
	return nil
}

// buildEnv flattens a server's env map into the KEY=VALUE form the stdio
// transport passes to the subprocess.
func buildEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Connect launches one MCP server and fetches its tool list.
func (h *Hub) Connect(ctx context.Context, name string, cfg ServerConfig) error {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, buildEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return fmt.Errorf("create client for %s: %w", name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "payperwork",
		Version: "1.0.0",
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("initialize %s: %w", name, err)
	}

	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	listed, err := mcpClient.ListTools(listCtx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("list tools on %s: %w", name, err)
	}

	var tools []mcp.Tool
	if listed != nil {
		tools = listed.Tools
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.connections[name]; ok {
		old.Client.Close()
	}
	h.connections[name] = &Connection{Name: name, Client: mcpClient, Tools: tools}
	log.Printf("[MCP] connected %s (%d tools)", name, len(tools))
	return nil
}

// Tools returns every tool advertised across all servers.
func (h *Hub) Tools() []mcp.Tool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var all []mcp.Tool
	for _, conn := range h.connections {
		all = append(all, conn.Tools...)
	}
	return all
}

// CallTool routes a call to whichever server advertises the tool.
func (h *Hub) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	h.mu.RLock()
	var target *Connection
	for _, conn := range h.connections {
		for _, tool := range conn.Tools {
			if tool.Name == name {
				target = conn
				break
			}
		}
		if target != nil {
			break
		}
	}
	h.mu.RUnlock()

	if target == nil {
		return nil, fmt.Errorf("tool not found: %s", name)
	}

	callCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	return target.Client.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
}

// Close shuts down every server connection.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.connections {
		conn.Client.Close()
	}
	h.connections = make(map[string]*Connection)
	return nil
}
