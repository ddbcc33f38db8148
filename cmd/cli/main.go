// Command cli runs maintenance tasks against the bot's storage without
// connecting to Discord.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/keshon/botcore/internal/config"
	"github.com/keshon/botcore/internal/logging"
	v "github.com/keshon/botcore/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	envFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:           v.AppName + "-cli",
		Short:         "Maintenance commands for " + v.AppName,
		Long:          v.AppDescription + "\n\nThe commands below work on the same storage as the bot and read the same environment.",
		Version:       v.Version + " (" + v.Commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for storage output")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(localeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration. The Discord token is not needed here.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Read(envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(logging.Options{Level: logLevel}), nil
}
