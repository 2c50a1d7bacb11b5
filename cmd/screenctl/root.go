package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"

	"call-screening/internal/calls"
	"call-screening/internal/config"
	"call-screening/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "screenctl",
		Short:         "Operate the call screening service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newTokenCmd(),
		newSchemaCmd(),
		newCallsCmd(),
		newClassifyCmd(),
	)
	return root
}

// openStore connects with the same DB_* variables the API uses.
func openStore(ctx context.Context) (*sql.DB, *calls.SQLStore, calls.Dialect, error) {
	cfg, err := config.LoadDB()
	if err != nil {
		return nil, nil, "", err
	}
	if cfg.Driver == config.DriverSQLite {
		db, err := utils.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, "", err
		}
		return db, calls.NewSQLStore(db, calls.DialectSQLite), calls.DialectSQLite, nil
	}
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		return nil, nil, "", err
	}
	return db, calls.NewSQLStore(db, calls.DialectPostgres), calls.DialectPostgres, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
