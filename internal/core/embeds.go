package core

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	embed "github.com/clinet/discordgo-embed"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/locale"
)

const (
	EmbedColor = 0xb01e66

	deniedColor = 6824314
	errorColor  = 16763981
)

// HelpKind selects the title and color of a command help embed.
type HelpKind int

const (
	HelpKindHelp HelpKind = iota
	HelpKindError
)

// visibleCommands renders `base sub` for every command visible to the actor.
// A command already in seen is skipped whether it was visible or not.
func visibleCommands(cmds []*command.Command, canInvoke func(*command.Command) bool, seen map[*command.Command]bool) []string {
	var out []string
	for _, c := range cmds {
		if seen[c] {
			continue
		}
		seen[c] = true
		if canInvoke(c) {
			out = append(out, c.DisplayName())
		}
	}
	return out
}

// CategoryHelpEmbed lists the commands of a category the actor may invoke.
// It returns nil when none is visible.
func CategoryHelpEmbed(category string, cmds []*command.Command, canInvoke func(*command.Command) bool) *discordgo.MessageEmbed {
	names := visibleCommands(cmds, canInvoke, map[*command.Command]bool{})
	if len(names) == 0 {
		return nil
	}

	return embed.NewEmbed().
		SetTitle(":information_source: Category Help").
		SetColor(EmbedColor).
		AddField(category, strings.Join(names, ", ")).
		SetFooter("Get command help: !help <command>").
		MessageEmbed
}

// GeneralHelpEmbed lists every category with the commands visible to the
// actor. Categories with nothing visible are left out and a command listed
// under an earlier category is not repeated.
func GeneralHelpEmbed(reg *command.Registry, canInvoke func(*command.Command) bool) *discordgo.MessageEmbed {
	e := embed.NewEmbed().
		SetTitle(":information_source: Help").
		SetColor(EmbedColor).
		SetFooter("Get category help: !help <category> • Get command help: !help <command>")

	seen := map[*command.Command]bool{}
	for _, cat := range reg.Categories() {
		cmds, _ := reg.Category(cat)
		names := visibleCommands(cmds, canInvoke, seen)
		if len(names) == 0 {
			continue
		}
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = "`" + n + "`"
		}
		e.AddField(cat, strings.Join(quoted, ", "))
	}
	return e.MessageEmbed
}

// DeniedEmbed tells the actor which roles would let them run c. roleIDs has
// one entry per authority label, "" for labels without a mapped role.
func DeniedEmbed(c *command.Command, roleIDs []string) *discordgo.MessageEmbed {
	var b strings.Builder
	b.WriteString("Your clearance level is too low to call `!")
	b.WriteString(c.DisplayName())
	b.WriteString("`.\n")

	if len(roleIDs) > 0 {
		b.WriteString("You need one of the following roles: ")
		for i, id := range roleIDs {
			if id == "" {
				id = "null"
			}
			b.WriteString("<@&" + id + ">")
			if i < len(roleIDs)-1 {
				b.WriteString(", ")
			}
		}
	} else {
		b.WriteString("You need to be an administrator.")
	}

	return embed.NewEmbed().
		SetTitle(":octopus: Access Denied").
		SetColor(deniedColor).
		SetDescription(b.String()).
		MessageEmbed
}

// CommandHelpEmbed renders the locale help of c. For HelpKindError the
// description carries the error text. The caller checks authority.
func CommandHelpEmbed(kind HelpKind, loc *locale.Locale, c *command.Command, description string) *discordgo.MessageEmbed {
	e := embed.NewEmbed()
	if kind == HelpKindError {
		e.SetTitle(":warning: Command Error").SetColor(errorColor)
	} else {
		e.SetTitle(":information_source: Command Help")
	}
	if description != "" {
		e.SetDescription(description)
	}

	e.Fields = PopulateFields(e.Fields, loc.Command(c.Base(), c.Sub()), c.DisplayName())
	return e.MessageEmbed
}
