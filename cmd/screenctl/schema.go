package main

import (
	"fmt"

	"call-screening/internal/audit"
	"call-screening/internal/calls"

	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Create the calls and audit_events tables if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, dialect, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := calls.EnsureSchema(cmd.Context(), db); err != nil {
				return fmt.Errorf("calls schema: %w", err)
			}
			if err := audit.EnsureSchema(cmd.Context(), db); err != nil {
				return fmt.Errorf("audit schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", dialect)
			return nil
		},
	})
	return cmd
}
