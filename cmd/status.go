package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brich-labs/marketwatch/internal/quality"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Audit stored data and show ingest checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := quality.NewChecker(st, quality.DefaultStaleAfter).Run(ctx)
		if err != nil {
			return err
		}

		healthy := "healthy"
		if !report.Healthy() {
			healthy = "UNHEALTHY"
		}
		fmt.Printf("store: %s (%d issues)\n", healthy, len(report.Issues))
		fmt.Printf("  orphan observations: %d\n", report.OrphanObservations)
		fmt.Printf("  stale snapshots:     %d\n", report.StaleSnapshots)
		fmt.Printf("  malformed ids:       %d\n", report.MalformedIDs)

		if len(report.MatchRates) > 0 {
			fmt.Println("match rates:")
			for _, rate := range report.MatchRates {
				fmt.Printf("  %-24s %d/%d (%.0f%%)\n", rate.Category, rate.Matched, rate.Total, rate.Rate*100)
			}
		}

		for _, iss := range report.Issues {
			fmt.Printf("[%s] %s %s: %s\n", iss.Severity, iss.Kind, iss.Subject, iss.Detail)
		}

		for _, stage := range []struct{ stage, category string }{
			{"catalog", "feed"},
		} {
			last, err := st.LastIngestSuccess(ctx, stage.stage, stage.category)
			if err != nil {
				return err
			}
			if last == nil {
				fmt.Printf("last %s ingest: never\n", stage.stage)
				continue
			}
			fmt.Printf("last %s ingest: %s (%s ago)\n",
				stage.stage, last.Format(time.RFC3339), time.Since(*last).Round(time.Minute))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
