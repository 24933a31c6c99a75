package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/backfill"
	"github.com/brich-labs/marketwatch/internal/report"
	"github.com/brich-labs/marketwatch/internal/store"
)

var reportCategoryID int64

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate XLSX reports",
}

var reportCombinedCmd = &cobra.Command{
	Use:   "combined",
	Short: "Write the combined marketplace/catalog price comparison",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := report.NewServiceWithSelector(st, backfill.NewSelectorAt(cfg.Backfill.Percentile))
		rows, err := svc.Combined(ctx)
		if err != nil {
			return err
		}

		path, err := reportPath("combined")
		if err != nil {
			return err
		}
		if err := report.ExportCombined(path, rows); err != nil {
			return err
		}

		zap.L().Info("combined report written",
			zap.String("path", path),
			zap.Int("rows", len(rows)),
		)
		return nil
	},
}

var reportFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Write the full workbook: combined listing, recent events, category summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := report.NewServiceWithSelector(st, backfill.NewSelectorAt(cfg.Backfill.Percentile))
		rows, err := svc.Combined(ctx)
		if err != nil {
			return err
		}

		since := time.Now().UTC().AddDate(0, 0, -cfg.Report.TrendingDays)
		events, err := st.ListEvents(ctx, store.EventFilter{Since: since, Limit: 5000})
		if err != nil {
			return err
		}
		perfs, err := svc.Performance(ctx, since)
		if err != nil {
			return err
		}

		path, err := reportPath("report")
		if err != nil {
			return err
		}
		if err := report.ExportWorkbook(path, rows, events, perfs); err != nil {
			return err
		}

		zap.L().Info("report workbook written",
			zap.String("path", path),
			zap.Int("rows", len(rows)),
			zap.Int("events", len(events)),
		)
		return nil
	},
}

var reportTrendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Write the items with the most upward rank movement",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if reportCategoryID == 0 {
			return eris.New("--category is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		since := time.Now().UTC().AddDate(0, 0, -cfg.Report.TrendingDays)
		items, err := report.NewService(st).Trending(ctx, reportCategoryID, since, 50)
		if err != nil {
			return err
		}

		path, err := reportPath("trending")
		if err != nil {
			return err
		}
		if err := report.ExportTrending(path, items); err != nil {
			return err
		}

		zap.L().Info("trending report written",
			zap.String("path", path),
			zap.Int("items", len(items)),
		)
		return nil
	},
}

func reportPath(kind string) (string, error) {
	dir := cfg.Report.OutputDir
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "create report dir")
	}
	name := kind + "-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	return filepath.Join(dir, name), nil
}

func init() {
	reportTrendingCmd.Flags().Int64Var(&reportCategoryID, "category", 0, "category id to rank")

	reportCmd.AddCommand(reportCombinedCmd)
	reportCmd.AddCommand(reportFullCmd)
	reportCmd.AddCommand(reportTrendingCmd)
	rootCmd.AddCommand(reportCmd)
}
