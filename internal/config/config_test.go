package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "sqlite", cfg.SQLDriver)
	assert.Equal(t, "lia_bot", cfg.SQLDatabase)
	assert.Equal(t, "db", cfg.DocstorePath)
	assert.Equal(t, "db_bak", cfg.BackupPath)
	assert.Equal(t, "@daily", cfg.BackupSchedule)
	assert.Equal(t, 60*time.Second, cfg.ErrorMessageTTL)
	assert.Equal(t, 20*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, 10*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, time.Minute, cfg.SlashRetryDelay)
	assert.False(t, cfg.ErrorReporting())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("SQL_DRIVER", "mysql")
	t.Setenv("DISCORD_GUILD_BLACKLIST", "1,2")
	t.Setenv("HELP_AUTHORITY", "mod,player")
	t.Setenv("ERROR_MESSAGE_TTL", "5s")
	t.Setenv("ERROR_REPORT_GUILD_ID", "g")
	t.Setenv("ERROR_REPORT_CHANNEL_ID", "c")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.SQLDriver)
	assert.Equal(t, []string{"1", "2"}, cfg.GuildBlacklist)
	assert.Equal(t, []string{"mod", "player"}, cfg.HelpAuthority)
	assert.Equal(t, 5*time.Second, cfg.ErrorMessageTTL)
	assert.True(t, cfg.ErrorReporting())
}

func TestLoadDotEnvFile(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	os.Unsetenv("DISCORD_TOKEN")
	t.Setenv("FULL_AUTHORITY_OVERRIDE", "already-set")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DISCORD_TOKEN=from-file\nFULL_AUTHORITY_OVERRIDE=from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.DiscordToken)
	assert.Equal(t, "already-set", cfg.FullAuthorityOverride)
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestReadWithoutToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DOCSTORE_PATH", "data")

	cfg, err := Read(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, cfg.DiscordToken)
	assert.Equal(t, "data", cfg.DocstorePath)
}

func TestParseEnvWrapsErrors(t *testing.T) {
	t.Setenv("SHUTDOWN_GRACE", "soon")

	var cfg Config
	err := ParseEnv(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}
