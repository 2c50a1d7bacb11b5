package main

import (
	"errors"
	"fmt"

	"call-screening/internal/calls"

	"github.com/spf13/cobra"
)

func newCallsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Inspect stored call records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <call-id>",
		Short: "Print one call record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if errors.Is(err, calls.ErrNotFound) {
				return fmt.Errorf("call %s not found", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	})

	var (
		status  string
		verdict string
		limit   int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List calls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := calls.ListFilter{Status: calls.CallStatus(status), Verdict: calls.Verdict(verdict), Limit: limit}
			if f.Status != "" && !f.Status.Valid() {
				return fmt.Errorf("invalid --status %q", status)
			}
			if f.Verdict != "" && !f.Verdict.Valid() {
				return fmt.Errorf("invalid --verdict %q", verdict)
			}
			db, store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			out, err := store.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	list.Flags().StringVar(&status, "status", "", "ACTIVE, ENDED or TERMINATED")
	list.Flags().StringVar(&verdict, "verdict", "", "SCAM or SAFE")
	list.Flags().IntVar(&limit, "limit", calls.DefaultListLimit, "maximum rows")

	var activeLimit int
	active := &cobra.Command{
		Use:   "active",
		Short: "List calls that are in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, _, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			out, err := store.ListActive(cmd.Context(), activeLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	active.Flags().IntVar(&activeLimit, "limit", calls.DefaultListLimit, "maximum rows")

	cmd.AddCommand(list, active)
	return cmd
}
