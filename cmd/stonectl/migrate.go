package main

import (
	"github.com/spf13/cobra"

	"github.com/ariefcatur/stonefab-orders/internal/postgres"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postgres.Migrate(dsn, lg)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last N migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postgres.Rollback(dsn, rollbackSteps, lg)
	},
}

func init() {
	migrateDownCmd.Flags().IntVarP(&rollbackSteps, "steps", "n", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
