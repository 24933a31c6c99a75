package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brich-labs/marketwatch/internal/model"
	"github.com/brich-labs/marketwatch/internal/resolve"
)

var (
	refBarcode string
	refPart    string
	refTier    string
	refNote    string
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Inspect and update matching references",
}

var referenceShowCmd = &cobra.Command{
	Use:   "show <vendor-item-id>",
	Short: "Print a matching reference as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ref, err := resolve.NewResolver(st).Resolve(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ref)
	},
}

var referenceProposeCmd = &cobra.Command{
	Use:   "propose <vendor-item-id>",
	Short: "Propose identifier evidence for a reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		tier := model.MatchTier(refTier)
		if !tier.Valid() {
			return eris.Errorf("invalid tier %q (unverified, low, medium, high)", refTier)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ref, err := resolve.NewResolver(st).ProposeMatch(ctx, args[0], resolve.Proposal{
			Barcode:    refBarcode,
			PartNumber: refPart,
			Tier:       tier,
			Note:       refNote,
		})
		if err != nil {
			return err
		}

		zap.L().Info("proposal applied",
			zap.String("vendor_item_id", ref.VendorItemID),
			zap.String("tier", string(ref.Tier)),
		)
		return nil
	},
}

var referenceVerifyCmd = &cobra.Command{
	Use:   "verify <vendor-item-id>",
	Short: "Mark a reference as manually verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ref, err := resolve.NewResolver(st).Verify(ctx, args[0], refNote)
		if err != nil {
			return err
		}

		zap.L().Info("reference verified", zap.String("vendor_item_id", ref.VendorItemID))
		return nil
	},
}

func init() {
	referenceProposeCmd.Flags().StringVar(&refBarcode, "barcode", "", "raw barcode evidence")
	referenceProposeCmd.Flags().StringVar(&refPart, "part-number", "", "raw part number evidence")
	referenceProposeCmd.Flags().StringVar(&refTier, "tier", "low", "confidence tier for the evidence")
	referenceProposeCmd.Flags().StringVar(&refNote, "note", "", "provenance note")
	referenceVerifyCmd.Flags().StringVar(&refNote, "note", "", "verification note")

	referenceCmd.AddCommand(referenceShowCmd)
	referenceCmd.AddCommand(referenceProposeCmd)
	referenceCmd.AddCommand(referenceVerifyCmd)
	rootCmd.AddCommand(referenceCmd)
}
