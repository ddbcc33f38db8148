// Package commandtest provides in-memory fakes of the Discord surfaces text
// and slash commands talk to.
package commandtest

import (
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/authority"
	"github.com/keshon/botcore/internal/command"
)

// Sent is one outbound message.
type Sent struct {
	ChannelID string
	Content   string
	Embed     *discordgo.MessageEmbed
	Reply     bool
}

// Messenger records everything sent through it.
type Messenger struct {
	mu      sync.Mutex
	n       int
	sent    []Sent
	deleted []string
}

func (m *Messenger) add(s Sent) *discordgo.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	m.sent = append(m.sent, s)
	return &discordgo.Message{ID: strconv.Itoa(m.n), ChannelID: s.ChannelID, Content: s.Content}
}

func (m *Messenger) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.add(Sent{ChannelID: channelID, Content: content}), nil
}

func (m *Messenger) ChannelMessageSendEmbed(channelID string, e *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.add(Sent{ChannelID: channelID, Embed: e}), nil
}

func (m *Messenger) ChannelMessageSendReply(channelID, content string, _ *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.add(Sent{ChannelID: channelID, Content: content, Reply: true}), nil
}

func (m *Messenger) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, messageID)
	m.mu.Unlock()
	return nil
}

func (m *Messenger) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Contents returns the text of every sent message in order.
func (m *Messenger) Contents() []string {
	var out []string
	for _, s := range m.Sent() {
		out = append(out, s.Content)
	}
	return out
}

func (m *Messenger) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// Context builds a guild message context from actor with the given content.
func Context(m *Messenger, actor authority.Actor, content string) *command.Context {
	return &command.Context{
		Session:        m,
		Message:        &discordgo.Message{ID: "m1", ChannelID: "c1", GuildID: actor.GuildID, Content: content, Author: &discordgo.User{ID: actor.ID}},
		Actor:          actor,
		GuildAvailable: true,
	}
}

// Responder records interaction responses.
type Responder struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
}

func (r *Responder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	r.mu.Lock()
	r.responses = append(r.responses, resp)
	r.mu.Unlock()
	return nil
}

func (r *Responder) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	r.edits = append(r.edits, edit)
	r.mu.Unlock()
	return &discordgo.Message{}, nil
}

func (r *Responder) Responses() []*discordgo.InteractionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), r.responses...)
}

// LastContent is the content of the latest response, "" when none.
func (r *Responder) LastContent() string {
	resps := r.Responses()
	if len(resps) == 0 || resps[len(resps)-1].Data == nil {
		return ""
	}
	return resps[len(resps)-1].Data.Content
}

// SlashCommand builds an application command interaction in guildID.
func SlashCommand(guildID, userID, name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: guildID,
		Member:  &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: options,
		},
	}}
}

// StringOption builds a string typed option.
func StringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}
