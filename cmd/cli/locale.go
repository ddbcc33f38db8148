package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/keshon/botcore/internal/core"
	"github.com/keshon/botcore/internal/locale"
	"github.com/spf13/cobra"
)

var localeCmd = &cobra.Command{
	Use:   "locale <base> [sub]",
	Short: "Preview the help text of a command",
	Long: `Render the help lines of a command from the locale files the way the
help embed shows them.

Examples:
  cli locale role
  cli locale blacklist add`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		loc, err := locale.Load(cfg.LocaleCorePath, cfg.LocaleUserPath)
		if err != nil {
			return err
		}

		base, sub := args[0], ""
		if len(args) == 2 {
			sub = args[1]
		}
		lines := loc.Command(base, sub)
		if len(lines) == 0 {
			return fmt.Errorf("no help lines for %q", strings.TrimSpace(base+" "+sub))
		}

		name := core.Prefix + base
		if sub != "" {
			name += " " + sub
		}
		for _, f := range core.PopulateFields(nil, lines, name) {
			fmt.Println(color.New(color.Bold).Sprint(f.Name))
			fmt.Println(f.Value)
			fmt.Println()
		}
		return nil
	},
}
