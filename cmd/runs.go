package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/katescodes/bidaudit/internal/models"
	"github.com/katescodes/bidaudit/internal/output"
	"github.com/katescodes/bidaudit/internal/store"
)

var (
	runsProject string
	runsBidder  string

	itemsStatus    string
	itemsEvaluator string
	itemsEvidence  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List review runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runsRun(cmd.Context())
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items RUN_ID",
	Short: "List the review items of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return itemsRun(cmd.Context(), args[0])
	},
}

func init() {
	runsCmd.Flags().StringVarP(&runsProject, "project", "p", "", "Filter by project ID")
	runsCmd.Flags().StringVarP(&runsBidder, "bidder", "b", "", "Filter by bidder name")
	rootCmd.AddCommand(runsCmd)

	itemsCmd.Flags().StringVar(&itemsStatus, "status", "", "Filter by status: PASS, WARN, FAIL, PENDING")
	itemsCmd.Flags().StringVar(&itemsEvaluator, "evaluator", "", "Filter by evaluator")
	itemsCmd.Flags().BoolVar(&itemsEvidence, "evidence", false, "Show attached evidence per item")
	rootCmd.AddCommand(itemsCmd)
}

func runsRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	runs, err := s.ListReviewRuns(ctx, runsProject, runsBidder)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		ui.Info("No review runs")
		return nil
	}

	table := ui.Table([]string{"ID", "Project", "Bidder", "Status", "Items", "Fail", "Pending", "Started"})
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.ProjectID,
			r.BidderName,
			output.RunStatusColor(string(r.Status)),
			fmt.Sprintf("%d", r.ItemCount),
			fmt.Sprintf("%d", r.FailCount),
			fmt.Sprintf("%d", r.PendingCount),
			r.StartedAt.Format(time.DateTime),
		})
	}
	return table.Render()
}

func itemsRun(ctx context.Context, runID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	filter := store.ReviewItemFilter{
		ReviewRunID: runID,
		Status:      models.ReviewStatus(itemsStatus),
		Evaluator:   itemsEvaluator,
	}
	items, err := s.ListReviewItems(ctx, filter)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		ui.Info("No review items match")
		return nil
	}

	printItemsTable(items)

	if itemsEvidence {
		for _, item := range items {
			if len(item.Evidence) == 0 {
				continue
			}
			fmt.Fprintf(ui.Out, "\n%s:\n", output.Cyan(item.RequirementID))
			for _, ev := range item.Evidence {
				loc := ev.SegmentID
				if ev.AssetID != "" {
					loc = fmt.Sprintf("%s p.%d-%d", ev.AssetID, ev.PageStart, ev.PageEnd)
				}
				fmt.Fprintf(ui.Out, "  [%s/%s] %s: %s\n", ev.Role, ev.Source, loc, ev.Quote)
			}
		}
	}
	return nil
}
