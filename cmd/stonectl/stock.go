package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/stonefab-orders/internal/inventory"
)

var adj inventory.Adjustment

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Inspect and correct product stock",
}

var stockAdjustCmd = &cobra.Command{
	Use:   "adjust PRODUCT_ID",
	Short: "Add or remove on-hand square metres with a reason",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := actor()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, db, err := store(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		adj.ProductID = args[0]
		lvl, err := inventory.New(st, sink(st), nil, lg).ManualAdjust(ctx, a, adj)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: on hand %.3f, reserved %.3f, available %.3f\n",
			lvl.ProductID, lvl.CurrentStock, lvl.Reserved, lvl.Available)
		if lvl.NeedsReorder {
			fmt.Fprintln(cmd.OutOrStdout(), "at or below reorder point")
		}
		return nil
	},
}

func init() {
	f := stockAdjustCmd.Flags()
	f.Float64Var(&adj.Delta, "delta", 0, "square metres to add (negative to remove)")
	f.StringVar(&adj.Reason, "reason", "", "why the stock changed")
	f.StringVar(&adj.Reference, "ref", "", "delivery note or count sheet reference")
	f.BoolVar(&adj.Procurement, "procurement", false, "record as a supplier receipt")
	_ = stockAdjustCmd.MarkFlagRequired("delta")
	_ = stockAdjustCmd.MarkFlagRequired("reason")

	stockCmd.AddCommand(stockAdjustCmd)
	rootCmd.AddCommand(stockCmd)
}
