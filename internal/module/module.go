// Package module defines the contract every feature plugin implements and
// the static list of plugins compiled into the bot.
package module

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/datastore"
	"github.com/keshon/botcore/internal/authority"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/events"
	"github.com/keshon/botcore/internal/locale"
	"github.com/keshon/botcore/internal/storage"
	"github.com/rs/zerolog"
)

// Entry is the capability bundle handed to a module at construction. It is
// passed by value and never changes afterwards.
type Entry struct {
	Session               *discordgo.Session
	Locale                *locale.Locale
	SQL                   *storage.SQL
	Docs                  *datastore.Store
	Events                *events.Bus
	FullAuthorityOverride string
	// RoleID resolves an authority label to the role mapped in a guild, "" when unmapped.
	RoleID func(guildID, label string) string
	Logger zerolog.Logger
}

// Module is a feature plugin. One instance exists per process; per-guild
// state lives in the module's Cache or in storage. Embed Base to get no-op
// implementations of every hook.
type Module interface {
	Name() string

	// Init runs once per known guild at startup and again for guilds joined
	// later. Modules ensure their schema here and publish initial state.
	Init(ctx context.Context, guild *discordgo.Guild) error

	// RegisterCommands adds the module's text commands. It runs on every
	// registry rebuild.
	RegisterCommands(r *command.Registry)

	// SlashCommands declares the module's slash commands, nil for none.
	SlashCommands() []*discordgo.ApplicationCommand
	InteractionPermitted(actor authority.Actor, name string) bool
	IncomingInteraction(i *command.Interaction) error

	OnMessage(m *discordgo.Message) error
	OnMessageDM(m *discordgo.Message) error
	OnMessageUpdate(old, updated *discordgo.Message) error
	OnMessageDelete(m *discordgo.Message) error
	OnGuildMemberAdd(m *discordgo.Member) error
	OnGuildMemberRemove(m *discordgo.Member) error
	OnMessageReactionAdd(r *discordgo.MessageReaction) error
	// OnPresenceUpdate gets nil for old when the member was not seen before.
	OnPresenceUpdate(old, updated *discordgo.Presence) error
	OnInteractionCreate(i *discordgo.InteractionCreate) error
	OnCommandExecuted(ctx *command.Context, c *command.Command) error
}

// Base implements every optional hook as a no-op.
type Base struct {
	Entry Entry
	Cache *Cache
}

func NewBase(entry Entry) Base {
	return Base{Entry: entry, Cache: NewCache()}
}

func (Base) Init(context.Context, *discordgo.Guild) error { return nil }
func (Base) RegisterCommands(*command.Registry) {}
func (Base) SlashCommands() []*discordgo.ApplicationCommand { return nil }
func (Base) IncomingInteraction(*command.Interaction) error { return nil }
func (Base) OnMessage(*discordgo.Message) error { return nil }
func (Base) OnMessageDM(*discordgo.Message) error { return nil }
func (Base) OnMessageUpdate(_, _ *discordgo.Message) error { return nil }
func (Base) OnMessageDelete(*discordgo.Message) error { return nil }
func (Base) OnGuildMemberAdd(*discordgo.Member) error { return nil }
func (Base) OnGuildMemberRemove(*discordgo.Member) error { return nil }
func (Base) OnMessageReactionAdd(*discordgo.MessageReaction) error { return nil }
func (Base) OnPresenceUpdate(_, _ *discordgo.Presence) error { return nil }
func (Base) OnInteractionCreate(*discordgo.InteractionCreate) error { return nil }
func (Base) OnCommandExecuted(*command.Context, *command.Command) error { return nil }

// InteractionPermitted allows administrators and the full authority
// override only.
func (b Base) InteractionPermitted(actor authority.Actor, _ string) bool {
	if actor.Admin {
		return true
	}
	return b.Entry.FullAuthorityOverride != "" && actor.ID == b.Entry.FullAuthorityOverride
}
