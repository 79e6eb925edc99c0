package mcp

// Settings is the root of mcp_settings.json.
type Settings struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig describes how to launch a single MCP server.
type ServerConfig struct {
	Command  string            `json:"command"`
	Args     []string          `json:"args"`
	Env      map[string]string `json:"env,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
}
