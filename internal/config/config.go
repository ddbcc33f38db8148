// Package config reads the bot configuration from the environment, after
// loading a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrNoToken = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken          string   `env:"DISCORD_TOKEN"`
	FullAuthorityOverride string   `env:"FULL_AUTHORITY_OVERRIDE"`
	GuildBlacklist        []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	HelpAuthority         []string `env:"HELP_AUTHORITY" envSeparator:","`

	SQLDriver   string `env:"SQL_DRIVER" envDefault:"sqlite"`
	SQLDSN      string `env:"SQL_DSN"`
	SQLDatabase string `env:"SQL_DATABASE" envDefault:"lia_bot"`

	DocstorePath   string `env:"DOCSTORE_PATH" envDefault:"db"`
	BackupPath     string `env:"BACKUP_PATH" envDefault:"db_bak"`
	BackupSchedule string `env:"BACKUP_SCHEDULE" envDefault:"@daily"`

	LocaleCorePath string `env:"LOCALE_CORE_PATH" envDefault:"locale/english.json"`
	LocaleUserPath string `env:"LOCALE_USER_PATH"`

	ErrorReportGuildID   string `env:"ERROR_REPORT_GUILD_ID"`
	ErrorReportChannelID string `env:"ERROR_REPORT_CHANNEL_ID"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	ErrorMessageTTL time.Duration `env:"ERROR_MESSAGE_TTL" envDefault:"60s"`
	ShutdownGrace   time.Duration `env:"SHUTDOWN_GRACE" envDefault:"20s"`
	ReconnectDelay  time.Duration `env:"RECONNECT_DELAY" envDefault:"10s"`
	SlashRetryDelay time.Duration `env:"SLASH_RETRY_DELAY" envDefault:"1m"`
	SlashCooldown   time.Duration `env:"SLASH_COOLDOWN" envDefault:"5s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Read loads files (".env" when none are given) into the environment without
// overriding variables already set, then parses Config. A missing file is
// not an error.
func Read(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is Read for the bot itself, which cannot start without a token.
func Load(files ...string) (*Config, error) {
	cfg, err := Read(files...)
	if err != nil {
		return nil, err
	}
	if cfg.DiscordToken == "" {
		return nil, ErrNoToken
	}
	return cfg, nil
}

// ErrorReporting reports whether errors are forwarded to a Discord channel.
func (c *Config) ErrorReporting() bool {
	return c.ErrorReportGuildID != "" && c.ErrorReportChannelID != ""
}
