package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katescodes/bidaudit/internal/models"
	"github.com/katescodes/bidaudit/internal/output"
	"github.com/katescodes/bidaudit/internal/store"
)

var (
	reviewProject string
	reviewBidder  string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run the review pipeline for a project and bidder",
	Long: `Run the full review pipeline: match each tender requirement to candidate
bid responses, evaluate hard gates, numeric thresholds, semantic
requirements, and cross-document consistency, then commit the run with
evidence attached to every item.

A re-run supersedes any stale running run for the same project and bidder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(cmd.Context())
	},
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewProject, "project", "p", "", "Project ID (required)")
	reviewCmd.Flags().StringVarP(&reviewBidder, "bidder", "b", "", "Bidder name (required)")
	_ = reviewCmd.MarkFlagRequired("project")
	_ = reviewCmd.MarkFlagRequired("bidder")
	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(ctx context.Context) error {
	if dryRun {
		ui.DryRunMsg("Would run review for project %s, bidder %s", reviewProject, reviewBidder)
		return nil
	}

	orch, err := getOrchestrator()
	if err != nil {
		return err
	}

	ui.Info("Reviewing project %s, bidder %s", reviewProject, reviewBidder)
	run, err := orch.Run(ctx, reviewProject, reviewBidder)
	if err != nil {
		return fmt.Errorf("review run: %w", err)
	}

	switch run.Status {
	case models.RunStatusCommitted:
		ui.Success("Run %s committed: %d items, %d FAIL, %d PENDING",
			run.ID, run.ItemCount, run.FailCount, run.PendingCount)
	default:
		ui.Error("Run %s finished with status %s", run.ID, run.Status)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	items, err := s.ListReviewItems(ctx, store.ReviewItemFilter{ReviewRunID: run.ID})
	if err != nil {
		return fmt.Errorf("list run items: %w", err)
	}
	printItemsTable(items)
	return nil
}

func printItemsTable(items []*models.ReviewItem) {
	if len(items) == 0 {
		ui.Info("No review items")
		return
	}

	table := ui.Table([]string{"Requirement", "Status", "Evaluator", "Remark"})
	for _, item := range items {
		table.Append([]string{
			item.RequirementID,
			output.StatusColor(string(item.Status)),
			item.Evaluator,
			item.Remark,
		})
	}
	_ = table.Render()
}
