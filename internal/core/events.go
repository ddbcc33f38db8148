package core

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/go-multierror"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/module"
	"github.com/rs/zerolog"
)

// Hooks delivers platform events to every module. A module that fails or
// panics is logged and skipped; the others still get the event.
type Hooks struct {
	mods []module.Module
	log  zerolog.Logger
}

func NewHooks(mods []module.Module, log zerolog.Logger) *Hooks {
	return &Hooks{mods: append([]module.Module(nil), mods...), log: log}
}

func (h *Hooks) Modules() []module.Module {
	return append([]module.Module(nil), h.mods...)
}

func (h *Hooks) each(hook string, fn func(module.Module) error) {
	for _, m := range h.mods {
		if err := safeHook(m, fn); err != nil {
			h.log.Error().Err(err).Str("module", m.Name()).Str("hook", hook).Msg("Module hook failed")
		}
	}
}

func safeHook(m module.Module, fn func(module.Module) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(m)
}

// InitGuild runs Init of every module for the guild and returns the
// combined errors.
func (h *Hooks) InitGuild(ctx context.Context, guild *discordgo.Guild) error {
	var result error
	ok := 0
	for _, m := range h.mods {
		err := safeHook(m, func(m module.Module) error { return m.Init(ctx, guild) })
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", m.Name(), err))
			continue
		}
		ok++
	}
	h.log.Info().Str("guild", guild.Name).Int("modules_ok", ok).Msg("Modules initialised")
	return result
}

// RegisterCommands lets every module add its text commands.
func (h *Hooks) RegisterCommands(reg *command.Registry) {
	h.each("register_commands", func(m module.Module) error {
		m.RegisterCommands(reg)
		return nil
	})
}

func (h *Hooks) Message(msg *discordgo.Message) {
	h.each("message", func(m module.Module) error { return m.OnMessage(msg) })
}

func (h *Hooks) MessageDM(msg *discordgo.Message) {
	h.each("message_dm", func(m module.Module) error { return m.OnMessageDM(msg) })
}

func (h *Hooks) MessageUpdate(old, updated *discordgo.Message) {
	h.each("message_update", func(m module.Module) error { return m.OnMessageUpdate(old, updated) })
}

func (h *Hooks) MessageDelete(msg *discordgo.Message) {
	h.each("message_delete", func(m module.Module) error { return m.OnMessageDelete(msg) })
}

func (h *Hooks) MemberAdd(member *discordgo.Member) {
	h.each("member_add", func(m module.Module) error { return m.OnGuildMemberAdd(member) })
}

func (h *Hooks) MemberRemove(member *discordgo.Member) {
	h.each("member_remove", func(m module.Module) error { return m.OnGuildMemberRemove(member) })
}

func (h *Hooks) ReactionAdd(r *discordgo.MessageReaction) {
	h.each("reaction_add", func(m module.Module) error { return m.OnMessageReactionAdd(r) })
}

func (h *Hooks) PresenceUpdate(old, updated *discordgo.Presence) {
	h.each("presence_update", func(m module.Module) error { return m.OnPresenceUpdate(old, updated) })
}

func (h *Hooks) InteractionCreate(i *discordgo.InteractionCreate) {
	h.each("interaction_create", func(m module.Module) error { return m.OnInteractionCreate(i) })
}

func (h *Hooks) CommandExecuted(ctx *command.Context, c *command.Command) {
	h.each("command_executed", func(m module.Module) error { return m.OnCommandExecuted(ctx, c) })
}
