package command

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/authority"
)

// InteractionResponder is the part of *discordgo.Session slash commands
// answer through.
type InteractionResponder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Interaction is what a module receives for a routed slash command.
type Interaction struct {
	Session InteractionResponder
	Event   *discordgo.InteractionCreate
	Actor   authority.Actor
}

func (i *Interaction) GuildID() string { return i.Event.GuildID }

// Name is the invoked slash command name.
func (i *Interaction) Name() string {
	if i.Event.Type != discordgo.InteractionApplicationCommand {
		return ""
	}
	return i.Event.ApplicationCommandData().Name
}

// Options returns the top level options keyed by name.
func (i *Interaction) Options() map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	if i.Event.Type != discordgo.InteractionApplicationCommand {
		return out
	}
	for _, o := range i.Event.ApplicationCommandData().Options {
		out[o.Name] = o
	}
	return out
}

// Option returns the value of a top level option as a string. User, role
// and channel options carry their id. Missing options return "".
func (i *Interaction) Option(name string) string {
	o, ok := i.Options()[name]
	if !ok {
		return ""
	}
	return optionString(o)
}

// Subcommand returns the invoked sub-command and its options as strings.
func (i *Interaction) Subcommand() (string, map[string]string) {
	for _, o := range i.Options() {
		if o.Type != discordgo.ApplicationCommandOptionSubCommand {
			continue
		}
		values := make(map[string]string, len(o.Options))
		for _, sub := range o.Options {
			values[sub.Name] = optionString(sub)
		}
		return o.Name, values
	}
	return "", nil
}

func optionString(o *discordgo.ApplicationCommandInteractionDataOption) string {
	switch v := o.Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
