package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Opening the store applies pending migrations.
func newMigrateCmd(flags *dbFlags, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(*flags)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := db.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", flags.driver)
			return nil
		},
	}
}
