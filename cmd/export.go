package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/katescodes/bidaudit/internal/store"
)

var (
	exportFormat string
	exportType   string
	exportRunID  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, CSV, or Markdown",
	Long:  "Export review runs or items in various formats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd.Context())
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "runs", "Data type: runs, items")
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "Run ID (required for --type items)")
	rootCmd.AddCommand(exportCmd)
}

func exportRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	switch exportType {
	case "runs":
		return exportRuns(ctx, s)
	case "items":
		if exportRunID == "" {
			return fmt.Errorf("--run is required for --type items")
		}
		return exportItems(ctx, s, exportRunID)
	default:
		return fmt.Errorf("unknown export type: %s (use: runs, items)", exportType)
	}
}

func exportRuns(ctx context.Context, s store.Store) error {
	runs, err := s.ListReviewRuns(ctx, "", "")
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"ID", "Project", "Bidder", "Status", "Items", "Fail", "Pending", "Started"})
		for _, r := range runs {
			w.Write([]string{r.ID, r.ProjectID, r.BidderName, string(r.Status),
				fmt.Sprintf("%d", r.ItemCount), fmt.Sprintf("%d", r.FailCount),
				fmt.Sprintf("%d", r.PendingCount), r.StartedAt.Format(time.RFC3339)})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Review Runs")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| ID | Project | Bidder | Status | Items | Fail | Pending |")
		fmt.Fprintln(ui.Out, "|----|---------|--------|--------|-------|------|---------|")
		for _, r := range runs {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s | %d | %d | %d |\n",
				r.ID, r.ProjectID, r.BidderName, r.Status, r.ItemCount, r.FailCount, r.PendingCount)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportItems(ctx context.Context, s store.Store, runID string) error {
	items, err := s.ListReviewItems(ctx, store.ReviewItemFilter{ReviewRunID: runID})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"ID", "RequirementID", "Status", "Evaluator", "Remark", "State"})
		for _, item := range items {
			w.Write([]string{item.ID, item.RequirementID, string(item.Status),
				item.Evaluator, item.Remark, string(item.State)})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Review Items")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Requirement | Status | Evaluator | Remark |")
		fmt.Fprintln(ui.Out, "|-------------|--------|-----------|--------|")
		for _, item := range items {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n",
				item.RequirementID, item.Status, item.Evaluator, item.Remark)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}
