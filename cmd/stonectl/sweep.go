package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/stonefab-orders/internal/jobs"
	"github.com/ariefcatur/stonefab-orders/internal/ledger"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep-overdue",
	Short: "Mark past-due invoices Overdue once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, db, err := store(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		job := jobs.OverdueSweep{Ledger: ledger.New(st, sink(st), nil, lg), Log: lg}
		n, err := job.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d invoice(s) marked overdue\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
