// migrate applies the embedded SQL migrations: go run ./cmd/migrate up|down|version.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"playground-flow/internal/config"
	"playground-flow/internal/db/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the playground-flow database schema",
		SilenceUsage:  true,
	}
	root.AddCommand(directionCmd(migrate.Up), directionCmd(migrate.Down), versionCmd())
	return root
}

func directionCmd(direction string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: fmt.Sprintf("Apply every %s migration", direction),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			if err := migrate.Run(dsn, direction); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", direction)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}
			v, dirty, err := migrate.Version(dsn)
			if err != nil {
				return err
			}
			if dirty {
				fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty)\n", v)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", v)
			return nil
		},
	}
}

func databaseURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	return cfg.DatabaseURL, nil
}
