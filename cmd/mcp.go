package cmd

import (
	"github.com/spf13/cobra"

	"github.com/katescodes/bidaudit/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an agent query bidaudit natively: import extraction bundles,
run the review pipeline, and inspect runs and items. Configure with:

  {
    "mcpServers": {
      "bidaudit": { "command": "bidaudit", "args": ["mcp"] }
    }
  }

Available tools: bidaudit_run_review, bidaudit_list_runs,
bidaudit_list_items, bidaudit_import_bundle`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := getOrchestrator()
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(s, orch)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
