// Package history keeps the last executed text commands of every guild in
// the document store and lists them to administrators.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/datastore"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/core"
	"github.com/keshon/botcore/internal/module"
)

const (
	Name = "history"

	group      = "history"
	collection = "commands"

	// Limit is how many records a guild keeps.
	Limit = 20

	discordMaxMessageLength = 2000
	codeLeftBlockWrapper    = "```md"
	codeRightBlockWrapper   = "```"
)

var maxContentLength = discordMaxMessageLength - len(codeLeftBlockWrapper) - len(codeRightBlockWrapper)

// Record is one executed command.
type Record struct {
	Datetime  time.Time `json:"datetime"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ChannelID string    `json:"channel_id"`
	Command   string    `json:"command"`
}

func init() {
	module.Register(Name, func(e module.Entry) (module.Module, error) {
		if e.Docs == nil {
			return nil, fmt.Errorf("document store is required")
		}
		return New(e), nil
	})
}

type Module struct {
	module.Base

	now func() time.Time
}

func New(e module.Entry) *Module {
	return &Module{Base: module.NewBase(e), now: time.Now}
}

func (m *Module) Name() string { return Name }

func (m *Module) Init(_ context.Context, guild *discordgo.Guild) error {
	return m.Entry.Docs.CreateDatabase(guild.ID)
}

// OnCommandExecuted appends a record and drops the oldest beyond Limit.
func (m *Module) OnCommandExecuted(ctx *command.Context, c *command.Command) error {
	rec := Record{
		Datetime:  m.now().UTC(),
		ChannelID: ctx.ChannelID(),
		Command:   c.DisplayName(),
	}
	if a := ctx.Message.Author; a != nil {
		rec.UserID = a.ID
		rec.Username = a.Username
	}
	return Append(context.Background(), m.Entry.Docs, ctx.GuildID(), rec)
}

// Append stores rec in the guild's history.
func Append(ctx context.Context, docs *datastore.Store, guildID string, rec Record) error {
	return docs.Session(ctx, guildID, group, func(s *datastore.Session) error {
		if _, err := s.Insert(collection, rec); err != nil {
			return err
		}
		n, err := s.Count(collection, nil)
		if err != nil {
			return err
		}
		for ; n > Limit; n-- {
			if _, err := s.Remove(collection, nil, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// Records returns the guild's history, oldest first.
func Records(ctx context.Context, docs *datastore.Store, guildID string) ([]Record, error) {
	var out []Record
	err := docs.Session(ctx, guildID, group, func(s *datastore.Session) error {
		found, err := s.Find(collection, nil)
		if err != nil {
			return err
		}
		return datastore.Decode(found, &out)
	})
	return out, err
}

// Format renders records newest first as a markdown block that fits one
// message.
func Format(records []Record) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%-19s\t%-15s\t%-12s\t%s\n", "# Datetime", "# Username", "# Channel", "# Command"))

	for idx := len(records) - 1; idx >= 0; idx-- {
		r := records[idx]
		line := fmt.Sprintf(
			"%-19s\t%-15s\t%-12s\t%s%s\n",
			r.Datetime.Format("2006-01-02 15:04:05"),
			r.Username,
			"<#"+r.ChannelID+">",
			core.Prefix,
			r.Command,
		)
		if builder.Len()+len(line) > maxContentLength {
			break
		}
		builder.WriteString(line)
	}

	return codeLeftBlockWrapper + "\n" + builder.String() + codeRightBlockWrapper
}

func (m *Module) RegisterCommands(r *command.Registry) {
	r.Add("history", "", "core", "", m.history)
}

func (m *Module) listing(guildID string) (string, error) {
	records, err := Records(context.Background(), m.Entry.Docs, guildID)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "No command history found.", nil
	}
	return Format(records), nil
}

func (m *Module) history(ctx *command.Context, _ []string, _ string, _ command.Extension) error {
	out, err := m.listing(ctx.GuildID())
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	_, err = ctx.Send(out)
	return err
}

func (m *Module) SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{{
		Name:        "history",
		Description: "Review recently executed commands",
	}}
}

func (m *Module) IncomingInteraction(i *command.Interaction) error {
	out, err := m.listing(i.GuildID())
	if err != nil {
		return core.RespondEphemeral(i.Session, i.Event, fmt.Sprintf("Failed to fetch command history: %v", err))
	}
	return core.RespondEphemeral(i.Session, i.Event, out)
}
