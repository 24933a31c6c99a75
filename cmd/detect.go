package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/detect"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect changes between the two newest snapshots of every category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := detect.NewService(st).Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("detection complete", zap.Int("events", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
}
