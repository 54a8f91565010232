package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tipbot/ledger/internal/repository"
)

func newMigrateCmd(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	for _, direction := range []repository.MigrateDirection{repository.MigrateUp, repository.MigrateDown} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(direction),
			Short: fmt.Sprintf("Run all %s migrations", direction),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireDatabase(cfg); err != nil {
					return err
				}
				if err := repository.Migrate(cfg.DatabaseURL, cfg.MigrationsURL, direction); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", direction)
				return nil
			},
		})
	}
	return cmd
}
