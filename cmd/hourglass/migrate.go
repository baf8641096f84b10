package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zulandar/hourglass/internal/db"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the branch and turn tables",
		Long: `Auto-migrates the story_branches and branch_turns tables on the
configured database. Intended for local sqlite runs and tests; production
schemas are owned by the story service.

Safe to run multiple times (idempotent).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.OutOrStdout(), configPath, cmd.Flags().Changed("config"))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hourglass config file")
	return cmd
}

func runMigrate(out io.Writer, configPath string, explicit bool) error {
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return err
	}
	gdb, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d table(s) on %s\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}
