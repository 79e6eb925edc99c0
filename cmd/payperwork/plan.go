package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/payperwork/payperwork/internal/agent"
	"github.com/payperwork/payperwork/internal/agent/agents"
	"github.com/payperwork/payperwork/internal/config"
	"github.com/payperwork/payperwork/internal/llm"
	"github.com/payperwork/payperwork/internal/mcp"
	"github.com/payperwork/payperwork/internal/orchestrator"
)

var planMCPSettings string

var planCmd = &cobra.Command{
	Use:   "plan <plan.yaml>",
	Short: "Run a workflow plan with the local agents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, args[0])
	},
}

func init() {
	planCmd.Flags().StringVar(&planMCPSettings, "mcp", "", "mcp_settings.json with external tool servers")
}

func runPlan(cmd *cobra.Command, path string) error {
	settingsStore, err := loadSettings()
	if err != nil {
		return err
	}
	settings := settingsStore.Get()

	providers, err := config.NewProvidersManager(config.FindConfigFile())
	if err != nil {
		return err
	}

	provider := settings.Provider.Provider
	if provider == "" {
		provider = providers.GetDefaultProvider()
	}
	model := settings.Provider.Model
	if model == "" {
		model = providers.GetDefaultModel()
	}
	apiKey := settings.Provider.APIKey
	if apiKey == "" {
		apiKey = providers.GetAPIKey(provider)
	}
	baseURL := settings.Provider.BaseURL
	if baseURL == "" {
		baseURL = providers.GetBaseURL(provider)
	}
	client := llm.NewClient(baseURL, apiKey, model)

	var tools []agent.Tool
	if planMCPSettings != "" {
		hub := mcp.NewHub()
		defer hub.Close()
		if err := hub.LoadSettings(cmd.Context(), planMCPSettings); err != nil {
			return err
		}
		tools = hub.AgentTools()
	}

	registry := agent.NewRegistry()
	for _, a := range []agent.Agent{
		agents.NewResearchAgent(client, tools...),
		agents.NewTopicsAgent(client),
		agents.NewSlidesAgent(client),
	} {
		if err := registry.Register(a); err != nil {
			return err
		}
	}

	plan, err := orchestrator.LoadPlanFile(path)
	if err != nil {
		return err
	}

	o := orchestrator.New(registry, orchestrator.Config{
		MaxParallelSteps: settings.Orchestrator.MaxParallelSteps,
		HistoryLimit:     settings.Orchestrator.HistoryLimit,
	})
	result, err := o.ExecuteWorkflow(cmd.Context(), plan)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("plan %s finished with failures", plan.Name)
	}
	return nil
}
