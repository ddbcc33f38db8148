package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/keshon/botcore/internal/logging"
	"github.com/keshon/botcore/internal/modules/blacklist"
	"github.com/keshon/botcore/internal/modules/roles"
	"github.com/keshon/botcore/internal/storage"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the SQL database and the tables of the built-in modules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		sql := storage.New(storage.Config{
			Driver:   cfg.SQLDriver,
			DSN:      cfg.SQLDSN,
			Database: cfg.SQLDatabase,
			Logger:   logging.Component(log, "sql"),
		})
		if err := sql.Init(ctx); err != nil {
			return err
		}
		defer sql.Close(context.Background())

		steps := []struct {
			name string
			run  func(context.Context, *storage.SQL) error
		}{
			{roles.Name, roles.Migrate},
			{blacklist.Name, blacklist.Migrate},
		}
		for _, step := range steps {
			if err := step.run(ctx, sql); err != nil {
				return fmt.Errorf("migrate %s: %w", step.name, err)
			}
			fmt.Printf("%s %s\n", color.GreenString("✓"), step.name)
		}
		fmt.Printf("Database %s is up to date (%s)\n", color.CyanString(cfg.SQLDatabase), cfg.SQLDriver)
		return nil
	},
}
