package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/katescodes/bidaudit/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import an extraction bundle from a YAML or JSON file",
	Long: `Import requirements, bid responses, and document segments produced by
the upstream extraction step. The bundle is validated before anything
is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func importRun(ctx context.Context, path string) error {
	bundle, err := ingest.LoadFile(path)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would import project %s: %d requirements, %d responses, %d segments",
			bundle.ProjectID, len(bundle.Requirements), len(bundle.Responses), len(bundle.Segments))
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	if err := ingest.Import(ctx, s, bundle); err != nil {
		return err
	}

	ui.Success("Imported project %s: %d requirements, %d responses, %d segments",
		bundle.ProjectID, len(bundle.Requirements), len(bundle.Responses), len(bundle.Segments))
	return nil
}
