package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/agrivision/internal/config"
	mysqlp "github.com/bryanwahyu/agrivision/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/agrivision/internal/infra/db/postgres"
)

func migrateCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the result store tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			ctx := cmd.Context()
			switch cfg.Database.Driver {
			case "mysql":
				db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
				if err != nil {
					return err
				}
				defer db.Close()
				err = mysqlp.Migrate(ctx, db)
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "mysql schema up to date")
				}
				return err
			case "postgres":
				db, err := pgp.Connect(ctx, cfg.PostgresDSN())
				if err != nil {
					return err
				}
				defer db.Close()
				err = pgp.Migrate(ctx, db)
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "postgres schema up to date")
				}
				return err
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "driver %q needs no migration\n", cfg.Database.Driver)
				return nil
			}
		},
	}
}
