package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/fetcher"
	"github.com/brich-labs/marketwatch/internal/ingest"
	"github.com/brich-labs/marketwatch/internal/resolve"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Partner catalog feed operations",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import [file-or-url]",
	Short: "Import the full partner catalog from an XLSX feed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		source := cfg.Catalog.FeedURL
		if len(args) == 1 {
			source = args[0]
		}
		if source == "" {
			return eris.New("no feed source: pass a file/URL or set catalog.feed_url")
		}

		path := source
		if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
			f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				Timeout:        time.Duration(cfg.Catalog.DownloadTimeout) * time.Second,
				RequestsPerSec: cfg.Catalog.RequestsPerSec,
			})

			tmp, err := os.CreateTemp("", "catalog-*.xlsx")
			if err != nil {
				return eris.Wrap(err, "create temp feed file")
			}
			tmp.Close()
			defer os.Remove(tmp.Name())

			size, err := f.DownloadToFile(ctx, source, tmp.Name())
			if err != nil {
				return err
			}
			zap.L().Info("feed downloaded", zap.String("url", source), zap.Int64("bytes", size))
			path = tmp.Name()
		}

		items, err := ingest.ParseFeed(path, fetcher.XLSXOptions{SheetName: cfg.Catalog.FeedSheet})
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := ingest.NewService(st, resolve.NewResolver(st), ingest.Options{})
		n, err := svc.ImportCatalog(ctx, items)
		if err != nil {
			return err
		}

		zap.L().Info("catalog imported",
			zap.String("source", filepath.Base(source)),
			zap.Int64("items", n),
		)
		return nil
	},
}

var catalogMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Propose catalog matches for unmatched references",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := ingest.NewService(st, resolve.NewResolver(st), ingest.Options{})
		applied, err := svc.AutoMatch(ctx, cfg.Matching.NameSimilarityThreshold)
		if err != nil {
			return err
		}

		zap.L().Info("auto-match complete", zap.Int("applied", applied))
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogMatchCmd)
	rootCmd.AddCommand(catalogCmd)
}
