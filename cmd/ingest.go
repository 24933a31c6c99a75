package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/ingest"
	"github.com/brich-labs/marketwatch/internal/resolve"
)

var ingestOverwrite bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <listings.yaml>",
	Short: "Ingest category listing snapshots from a scrape file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		listings, err := ingest.LoadListings(args[0])
		if err != nil {
			return err
		}

		svc := ingest.NewService(st, resolve.NewResolver(st), ingest.Options{
			Concurrency: cfg.Ingest.Concurrency,
			Overwrite:   ingestOverwrite || cfg.Ingest.Overwrite,
		})

		n, err := svc.IngestAll(ctx, listings)
		if err != nil {
			return err
		}

		zap.L().Info("ingest complete",
			zap.String("file", args[0]),
			zap.Int("listings", len(listings)),
			zap.Int("observations", n),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestOverwrite, "overwrite", false, "replace snapshots that already exist for the same capture time")
	rootCmd.AddCommand(ingestCmd)
}
