package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/core"
)

// userMessage reports whether msg was written by a person as a plain
// message or a reply.
func userMessage(msg *discordgo.Message) bool {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return false
	}
	return msg.Type == discordgo.MessageTypeDefault || msg.Type == discordgo.MessageTypeReply
}

// commandChannel reports whether text commands are read in the channel.
// Announcement and stage channels are skipped.
func commandChannel(state *discordgo.State, channelID string) bool {
	if state == nil {
		return true
	}
	ch, err := state.Channel(channelID)
	if err != nil || ch == nil {
		return true
	}
	return ch.Type != discordgo.ChannelTypeGuildNews && ch.Type != discordgo.ChannelTypeGuildStageVoice
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !userMessage(m.Message) {
		return
	}
	if m.GuildID == "" {
		b.hooks.MessageDM(m.Message)
		return
	}
	if !commandChannel(s.State, m.ChannelID) {
		return
	}

	b.hooks.Message(m.Message)

	member := b.member(s, m.Message)
	if member == nil {
		return
	}
	b.runCommand(s, s.State, m.Message, member)
}

// member returns the author of a guild message as a full member, asking
// the API when the state does not have it.
func (b *Bot) member(s *discordgo.Session, msg *discordgo.Message) *discordgo.Member {
	if msg.Member != nil {
		m := *msg.Member
		m.User = msg.Author
		m.GuildID = msg.GuildID
		return &m
	}
	if m, err := s.State.Member(msg.GuildID, msg.Author.ID); err == nil {
		return m
	}
	m, err := s.GuildMember(msg.GuildID, msg.Author.ID)
	if err != nil {
		b.log.Warn().Err(err).Str("guild", msg.GuildID).Str("user", msg.Author.ID).Msg("Failed to fetch member")
		return nil
	}
	return m
}

// runCommand hands a guild message to the resolver.
func (b *Bot) runCommand(msgr command.Messenger, state *discordgo.State, msg *discordgo.Message, member *discordgo.Member) core.Outcome {
	ctx := &command.Context{
		Session:        msgr,
		Message:        msg,
		Member:         member,
		Actor:          ActorFromMember(state, msg.GuildID, member),
		GuildAvailable: b.guildAvailable(msg.GuildID),
	}
	outcome := b.resolver.Handle(ctx)
	if outcome != core.OutcomeIgnored {
		b.log.Debug().Str("guild", msg.GuildID).Str("user", ctx.Actor.ID).Stringer("outcome", outcome).Msg("Text command")
	}
	return outcome
}

func (b *Bot) onMessageUpdate(s *discordgo.Session, u *discordgo.MessageUpdate) {
	updated := u.Message
	if updated.Author == nil {
		full, err := s.ChannelMessage(u.ChannelID, u.ID)
		if err != nil {
			b.log.Error().Err(err).Str("channel", u.ChannelID).Msg("Failed to fetch updated message")
			return
		}
		updated = full
	}
	if !userMessage(updated) || updated.Type != discordgo.MessageTypeDefault {
		return
	}

	old := u.BeforeUpdate
	if old == nil {
		old = updated
	}
	if !userMessage(old) || old.Type != discordgo.MessageTypeDefault {
		return
	}
	b.hooks.MessageUpdate(old, updated)
}

func (b *Bot) onMessageDelete(_ *discordgo.Session, d *discordgo.MessageDelete) {
	msg := d.Message
	if d.BeforeDelete != nil {
		msg = d.BeforeDelete
		if !userMessage(msg) || msg.Type != discordgo.MessageTypeDefault {
			return
		}
	}
	b.hooks.MessageDelete(msg)
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	b.hooks.MemberAdd(m.Member)
}

func (b *Bot) onGuildMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User != nil && m.User.Bot {
		return
	}
	if m.User != nil {
		b.forgetPresence(m.GuildID, m.User.ID)
	}
	b.hooks.MemberRemove(m.Member)
}

func (b *Bot) onMessageReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	b.hooks.ReactionAdd(r.MessageReaction)
}

func (b *Bot) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil || p.User.Bot {
		return
	}
	old := b.swapPresence(p.GuildID, &p.Presence)
	b.hooks.PresenceUpdate(old, &p.Presence)
}

// swapPresence stores a copy of the member's presence and returns the one
// seen before, or nil. The session state is already updated when handlers
// run, so the previous presence is kept here.
func (b *Bot) swapPresence(guildID string, p *discordgo.Presence) *discordgo.Presence {
	b.mu.Lock()
	defer b.mu.Unlock()

	guild := b.presences[guildID]
	if guild == nil {
		guild = make(map[string]discordgo.Presence)
		b.presences[guildID] = guild
	}
	prev, ok := guild[p.User.ID]
	guild[p.User.ID] = *p
	if !ok {
		return nil
	}
	return &prev
}

func (b *Bot) forgetPresence(guildID, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.presences[guildID], userID)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.hooks.InteractionCreate(i)
	b.dispatch(s, s.State, i)
}

func (b *Bot) dispatch(r command.InteractionResponder, state *discordgo.State, i *discordgo.InteractionCreate) {
	actor := ActorFromMember(state, i.GuildID, i.Member)
	if err := b.dispatcher.Dispatch(r, i, actor); err != nil {
		b.log.Error().Err(err).Str("guild", i.GuildID).Str("user", actor.ID).Msg("Slash command failed")
	}
}
