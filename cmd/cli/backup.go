package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/keshon/botcore/datastore"
	"github.com/keshon/botcore/internal/logging"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy every document database to the backup directory",
	Long: `Copy every guild database of the document store to
<BACKUP_PATH>/<timestamp>/<guild>, the same way the scheduled backup does.

Do not run this while the bot writes to the same store from another process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		docs, err := datastore.New(datastore.Config{
			Root:       cfg.DocstorePath,
			BackupRoot: cfg.BackupPath,
			Logger:     logging.Component(log, "datastore"),
		})
		if err != nil {
			return fmt.Errorf("open document store: %w", err)
		}
		defer docs.Close(context.Background())

		fmt.Printf("Backing up %d database(s) from %s\n", len(docs.Databases()), cfg.DocstorePath)
		target, err := docs.Backup(time.Now())
		if err != nil {
			fmt.Printf("%s %s\n", color.YellowString("Partial backup written to"), target)
			return err
		}
		fmt.Printf("%s %s\n", color.GreenString("✓ Backup written to"), target)
		return nil
	},
}
