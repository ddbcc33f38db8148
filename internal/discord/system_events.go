package discord

import (
	"github.com/keshon/botcore/internal/events"
	"github.com/keshon/botcore/internal/modules/roles"
)

// handleEvent applies state changes announced by modules.
func (b *Bot) handleEvent(ev events.Event) {
	switch ev.Type {
	case events.RolesChanged:
		b.reloadRoles(ev.GuildID)
	case events.BlacklistChanged:
		b.blacklist.Replace(ev.UserIDs)
		b.log.Info().Int("users", len(ev.UserIDs)).Msg("Blacklist updated")
	case events.RefreshCommands:
		b.refreshCommands(ev.GuildID)
	}
}

// reloadRoles replaces the guild's role map with what is stored. On a
// storage failure the previous map stays in place.
func (b *Bot) reloadRoles(guildID string) {
	if b.deps.SQL == nil {
		return
	}
	m, err := roles.Load(b.context(), b.deps.SQL, guildID)
	if err != nil {
		b.log.Error().Err(err).Str("guild", guildID).Msg("Failed to load role map")
		return
	}
	b.roles.Replace(guildID, m)
	b.log.Debug().Str("guild", guildID).Int("roles", len(m)).Msg("Role map reloaded")
}

// refreshCommands rebuilds the command tables and syncs slash commands of
// one guild, or of every guild when guildID is empty.
func (b *Bot) refreshCommands(guildID string) {
	b.Reload()

	scope, guilds := "all", b.Guilds()
	if guildID != "" {
		scope, guilds = guildID, []string{guildID}
	}
	b.log.Info().Str("scope", scope).Msg("Refreshing commands")
	b.slash.Start(scope, guilds, b.dispatcher.Commands())
}
