package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/stonefab-orders/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and write runtime settings",
}

var settingsGetCmd = &cobra.Command{
	Use:  "get KEY",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, db, err := store(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		s, err := settings.New(st, nil, lg).Get(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", s.Key, s.Value)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:  "set KEY VALUE",
	Args: cobra.ExactArgs(2),
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

		s, err := settings.New(st, sink(st), lg).Set(ctx, a, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", s.Key, s.Value)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
