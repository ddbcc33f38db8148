package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/authority"
)

// ActorFromMember reduces member to what authority checks need. The result
// is computed from the member's current roles on every call.
func ActorFromMember(state *discordgo.State, guildID string, member *discordgo.Member) authority.Actor {
	actor := authority.Actor{GuildID: guildID}
	if member == nil || member.User == nil {
		return actor
	}
	actor.ID = member.User.ID
	actor.Roles = append([]string(nil), member.Roles...)
	actor.Admin = IsAdministrator(state, guildID, member)
	return actor
}

// IsAdministrator reports whether a member owns the guild or holds a role
// with the administrator permission.
func IsAdministrator(state *discordgo.State, guildID string, member *discordgo.Member) bool {
	if member == nil || member.User == nil {
		return false
	}
	// interaction members carry their resolved permissions
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	if state == nil {
		return false
	}

	guild, err := state.Guild(guildID)
	if err != nil || guild == nil {
		return false
	}
	if member.User.ID == guild.OwnerID {
		return true
	}
	for _, roleID := range member.Roles {
		if role, _ := state.Role(guildID, roleID); role != nil {
			if role.Permissions&discordgo.PermissionAdministrator != 0 {
				return true
			}
		}
	}
	return false
}
