package command

import (
	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/authority"
)

// Messenger is the part of *discordgo.Session text commands talk to.
type Messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Context is what a text command callback receives.
type Context struct {
	Session Messenger
	Message *discordgo.Message
	Member  *discordgo.Member
	Actor   authority.Actor

	// GuildAvailable is false during a platform outage of the guild.
	GuildAvailable bool
}

func (c *Context) GuildID() string   { return c.Message.GuildID }
func (c *Context) ChannelID() string { return c.Message.ChannelID }

// Send posts content to the channel of the message.
func (c *Context) Send(content string) (*discordgo.Message, error) {
	return c.Session.ChannelMessageSend(c.ChannelID(), content)
}

// Reply answers the message with a reference to it.
func (c *Context) Reply(content string) (*discordgo.Message, error) {
	return c.Session.ChannelMessageSendReply(c.ChannelID(), content, c.Message.Reference())
}

// SendEmbed posts an embed to the channel of the message.
func (c *Context) SendEmbed(embed *discordgo.MessageEmbed) (*discordgo.Message, error) {
	return c.Session.ChannelMessageSendEmbed(c.ChannelID(), embed)
}
