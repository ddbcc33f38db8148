// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/keshon/botcore/internal/modules/blacklist"
	_ "github.com/keshon/botcore/internal/modules/history"
	_ "github.com/keshon/botcore/internal/modules/roles"

	"github.com/keshon/botcore/datastore"
	"github.com/keshon/botcore/internal/config"
	"github.com/keshon/botcore/internal/discord"
	"github.com/keshon/botcore/internal/events"
	"github.com/keshon/botcore/internal/locale"
	"github.com/keshon/botcore/internal/logging"
	"github.com/keshon/botcore/internal/storage"
	v "github.com/keshon/botcore/internal/version"
	"github.com/keshon/botcore/pkg/jobmgr"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	report := &logging.Reporter{}
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Report: report})
	log.Info().Str("version", v.Version).Msgf("Starting %v bot...", v.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sql := storage.New(storage.Config{
		Driver:   cfg.SQLDriver,
		DSN:      cfg.SQLDSN,
		Database: cfg.SQLDatabase,
		Logger:   logging.Component(log, "sql"),
	})
	if err := sql.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("SQL database is offline.")
	}

	docs, err := datastore.New(datastore.Config{
		Root:       cfg.DocstorePath,
		BackupRoot: cfg.BackupPath,
		Logger:     logging.Component(log, "datastore"),
	})
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	if err := docs.Schedule(cfg.BackupSchedule); err != nil {
		return fmt.Errorf("schedule backups: %w", err)
	}

	log.Info().Msg("Loading strings...")
	loc, err := locale.Load(cfg.LocaleCorePath, cfg.LocaleUserPath)
	if err != nil {
		return err
	}

	jobs := jobmgr.NewManager(func(msg string) {
		log.Debug().Str("status", msg).Msg("Job")
	})

	bot, err := discord.New(discord.Options{
		Token:                 cfg.DiscordToken,
		FullAuthorityOverride: cfg.FullAuthorityOverride,
		GuildBlacklist:        cfg.GuildBlacklist,
		HelpAuthority:         cfg.HelpAuthority,
		ErrorReportGuildID:    cfg.ErrorReportGuildID,
		ErrorReportChannelID:  cfg.ErrorReportChannelID,
		ErrorMessageTTL:       cfg.ErrorMessageTTL,
		ReconnectDelay:        cfg.ReconnectDelay,
		SlashRetryDelay:       cfg.SlashRetryDelay,
		SlashCooldown:         cfg.SlashCooldown,
	}, discord.Deps{
		SQL:    sql,
		Docs:   docs,
		Locale: loc,
		Events: events.NewBus(256, logging.Component(log, "events")),
		Jobs:   jobs,
		Report: report,
		Logger: log,
	})
	if err != nil {
		return err
	}

	runErr := bot.Run(ctx)
	if runErr != nil {
		log.Error().Err(runErr).Msg("Discord bot error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return sql.Close(drainCtx) })
	g.Go(func() error { return docs.Close(drainCtx) })
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Dur("grace", cfg.ShutdownGrace).Msg("Storage did not drain in time")
	}

	log.Info().Msg("Discord bot exited cleanly")
	return runErr
}
