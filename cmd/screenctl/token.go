package main

import (
	"fmt"
	"time"

	"call-screening/internal/auth"
	"call-screening/internal/config"
	"call-screening/internal/rbac"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage operator tokens",
	}

	var (
		operatorID string
		role       string
		ttl        time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an operator token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rbac.IsKnownRole(role) {
				return fmt.Errorf("unknown role %q (want admin, operator or analyst)", role)
			}
			if ttl > config.MaxTokenTTL {
				return fmt.Errorf("--ttl must not exceed %s", config.MaxTokenTTL)
			}
			cfg, err := config.LoadAuth()
			if err != nil {
				return err
			}
			if ttl > 0 {
				cfg.TokenTTL = ttl
			}
			m, err := auth.NewManager(cfg)
			if err != nil {
				return err
			}
			tok, err := m.Issue(time.Now(), operatorID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	issue.Flags().StringVar(&operatorID, "user", "", "operator id, recorded as the token subject")
	issue.Flags().StringVar(&role, "role", rbac.RoleOperator, "role: admin, operator or analyst")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_TOKEN_TTL)")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(issue)
	return cmd
}
