package core

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/keshon/botcore/internal/authority"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/locale"
	"github.com/rs/zerolog"
)

// Prefix marks a message as a text command.
const Prefix = "!"

// UnavailableNotice answers commands sent while the guild is unavailable.
const UnavailableNotice = "Commands unavailable during temporary Discord server outage. Try again later."

// DefaultErrorMessageTTL is how long a command error embed stays in the channel.
const DefaultErrorMessageTTL = 60 * time.Second

// Outcome is what Handle did with a message.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeCategoryHelp
	OutcomeUnavailable
	OutcomeDenied
	OutcomeHelp
	OutcomeExecuted
	OutcomeUserError
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeCategoryHelp:
		return "category_help"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeDenied:
		return "denied"
	case OutcomeHelp:
		return "help"
	case OutcomeExecuted:
		return "executed"
	case OutcomeUserError:
		return "user_error"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Parsed is a message resolved to either a category or a command.
type Parsed struct {
	// IsCategory is set for a category help request; Category names it.
	IsCategory bool
	Category   string

	Command *command.Command
	// Raw is the text after the command and sub-command names.
	Raw  string
	Help bool
}

// Resolver turns chat messages into command invocations.
type Resolver struct {
	Registry  *command.Registry
	Authority *authority.Authority
	Blacklist *authority.Blacklist
	Locale    *locale.Locale
	Log       zerolog.Logger

	ErrorMessageTTL time.Duration

	// Executed runs after a callback returned without error.
	Executed func(ctx *command.Context, c *command.Command)
}

func NewResolver(reg *command.Registry, auth *authority.Authority, blacklist *authority.Blacklist, loc *locale.Locale, log zerolog.Logger) *Resolver {
	return &Resolver{
		Registry:        reg,
		Authority:       auth,
		Blacklist:       blacklist,
		Locale:          loc,
		Log:             log,
		ErrorMessageTTL: DefaultErrorMessageTTL,
	}
}

// Parse resolves text against the registry. canInvoke decides whether the
// actor may use the default help command, which the category shortcut
// requires. ok is false when text is not a known command.
func (r *Resolver) Parse(text string, canInvoke func(*command.Command) bool) (p Parsed, ok bool) {
	if !strings.HasPrefix(text, Prefix) {
		return Parsed{}, false
	}
	str := trimLeft(text[len(Prefix):])

	// "!help misc" and "!misc help" both ask for the misc category.
	if strings.Contains(strings.ToLower(str), command.HelpBase) {
		category := strings.TrimSpace(strings.Replace(str, command.HelpBase, "", 1))
		if _, found := r.Registry.Category(category); found {
			if help := r.Registry.HelpCommand(); help != nil && canInvoke(help) {
				return Parsed{IsCategory: true, Category: category}, true
			}
		}
	}

	help := false
	if hasPrefixFold(str, command.HelpBase) {
		help = true
		str = trimLeft(str[len(command.HelpBase):])
	}

	token := firstToken(str)
	group := r.matchBase(strings.ToLower(token))
	if group == nil {
		if !help || strings.TrimSpace(str) != "" {
			return Parsed{}, false
		}
		// bare "!help" runs the help command itself
		group = r.Registry.ByKey(command.HelpBase)
		if len(group) == 0 {
			return Parsed{}, false
		}
		help = false
		token = ""
	}
	str = trimLeft(str[len(token):])

	token = firstToken(str)
	cmd, matched := matchSub(group, strings.ToLower(token))
	if cmd == nil {
		return Parsed{}, false
	}
	if matched {
		str = str[len(token):]
	}
	str = trimLeft(str)

	if hasPrefixFold(str, command.HelpBase) {
		help = true
	}

	return Parsed{Command: cmd, Raw: str, Help: help}, true
}

// matchBase returns the group of the first key, in registration order, with
// a name equal to token.
func (r *Resolver) matchBase(token string) []*command.Command {
	for _, key := range r.Registry.Keys() {
		for _, name := range strings.Split(key, ",") {
			if token == strings.ToLower(name) {
				return r.Registry.ByKey(key)
			}
		}
	}
	return nil
}

// matchSub scans the group in order for a sub-name equal to token. Without
// a match it falls back to the first command with an empty sub-name;
// matched reports whether token was consumed.
func matchSub(group []*command.Command, token string) (cmd *command.Command, matched bool) {
	var fallback *command.Command
	for _, c := range group {
		for _, sub := range c.SubNames {
			if sub == "" && fallback == nil {
				fallback = c
			}
			if token == strings.ToLower(sub) {
				return c, token != ""
			}
		}
	}
	return fallback, false
}

// Handle resolves and runs a message. Every failure is logged and reported
// through the returned Outcome; nothing propagates to the caller.
func (r *Resolver) Handle(ctx *command.Context) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Log.Error().Interface("panic", rec).Str("content", ctx.Message.Content).Msg("Command resolution panicked")
			outcome = OutcomeFailed
		}
	}()

	actor := ctx.Actor
	if r.Blacklist != nil && r.Blacklist.Contains(actor.ID) {
		return OutcomeIgnored
	}

	canInvoke := func(c *command.Command) bool {
		return r.Authority.CanInvoke(actor, c.AuthorityLabels)
	}

	p, ok := r.Parse(ctx.Message.Content, canInvoke)
	if !ok {
		return OutcomeIgnored
	}

	if p.IsCategory {
		cmds, _ := r.Registry.Category(p.Category)
		if e := CategoryHelpEmbed(p.Category, cmds, canInvoke); e != nil {
			r.send(ctx.SendEmbed(e))
		}
		return OutcomeCategoryHelp
	}

	if !ctx.GuildAvailable {
		r.send(ctx.Reply(UnavailableNotice))
		return OutcomeUnavailable
	}

	if !canInvoke(p.Command) {
		roles := r.Authority.RequiredRoles(ctx.GuildID(), p.Command.AuthorityLabels)
		r.send(ctx.SendEmbed(DeniedEmbed(p.Command, roles)))
		return OutcomeDenied
	}

	args := strings.Fields(p.Raw)

	if p.Help {
		r.send(ctx.SendEmbed(CommandHelpEmbed(HelpKindHelp, r.Locale, p.Command, "")))
		return OutcomeHelp
	}

	err := r.call(ctx, p.Command, args, p.Raw)
	if err == nil {
		r.Log.Info().
			Str("guild", ctx.GuildID()).
			Str("user", actor.ID).
			Str("command", p.Command.DisplayName()).
			Msg("Command executed")
		if r.Executed != nil {
			r.Executed(ctx, p.Command)
		}
		return OutcomeExecuted
	}

	text, ok := command.AsUserError(err)
	if !ok {
		r.Log.Error().Err(err).Str("command", p.Command.DisplayName()).Msg("Command failed")
		return OutcomeFailed
	}

	msg, err := ctx.SendEmbed(CommandHelpEmbed(HelpKindError, r.Locale, p.Command, text))
	if err != nil {
		r.Log.Error().Err(err).Msg("Failed to send command error")
		return OutcomeUserError
	}
	if msg != nil && r.ErrorMessageTTL > 0 {
		time.AfterFunc(r.ErrorMessageTTL, func() {
			if err := ctx.Session.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
				r.Log.Warn().Err(err).Msg("Failed to delete command error")
			}
		})
	}
	return OutcomeUserError
}

func (r *Resolver) call(ctx *command.Context, c *command.Command, args []string, raw string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("command %s panicked: %v", c.DisplayName(), rec)
		}
	}()
	if c.Callback == nil {
		return fmt.Errorf("command %s has no callback", c.DisplayName())
	}
	return c.Callback(ctx, args, raw, command.Extension{})
}

func (r *Resolver) send(_ any, err error) {
	if err != nil {
		r.Log.Error().Err(err).Msg("Failed to send message")
	}
}

// HelpCallback answers the bare help command with every visible category.
func (r *Resolver) HelpCallback(ctx *command.Context, _ []string, _ string, _ command.Extension) error {
	e := GeneralHelpEmbed(r.Registry, func(c *command.Command) bool {
		return r.Authority.CanInvoke(ctx.Actor, c.AuthorityLabels)
	})
	_, err := ctx.SendEmbed(e)
	return err
}

// RegisterBuiltins adds the commands the core answers itself.
func (r *Resolver) RegisterBuiltins() {
	r.Registry.Add(command.HelpBase, "", "misc", authority.Everyone, r.HelpCallback)
}

func firstToken(s string) string {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i]
	}
	return s
}

func trimLeft(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
