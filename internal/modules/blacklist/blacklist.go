// Package blacklist keeps the users denied every command and slash command.
package blacklist

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/core"
	"github.com/keshon/botcore/internal/events"
	"github.com/keshon/botcore/internal/module"
	"github.com/keshon/botcore/internal/storage"
	"gorm.io/gorm"
)

const Name = "blacklist"

const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

const (
	errNoUser          = "You must ping the user, or type their ID"
	errBadUser         = "The provided user ID is not correct"
	replyAlreadyListed = "This user is already blacklisted."
	replyListed        = "User blacklisted."
	replyNotListed     = "This user is not blacklisted."
	replyUnlisted      = "User no longer blacklisted."
)

type User struct {
	ID     uint   `gorm:"primaryKey;autoIncrement"`
	UserID string `gorm:"size:64;not null;index"`
}

func (User) TableName() string { return "blacklist_users" }

func init() {
	module.Register(Name, func(e module.Entry) (module.Module, error) {
		return New(e), nil
	})
}

type Module struct {
	module.Base
}

// New ensures the schema and announces the stored blacklist. Storage errors
// are logged; the module stays usable once the database comes back.
func New(e module.Entry) *Module {
	m := &Module{Base: module.NewBase(e)}

	ctx := context.Background()
	if err := Migrate(ctx, e.SQL); err != nil {
		e.Logger.Error().Err(err).Msg("Failed to ensure blacklist schema")
		m.publish(nil)
		return m
	}
	ids, err := LoadAll(ctx, e.SQL)
	if err != nil {
		e.Logger.Error().Err(err).Msg("Failed to load blacklist")
	}
	m.publish(ids)
	return m
}

func (m *Module) Name() string { return Name }

func Migrate(ctx context.Context, sql *storage.SQL) error {
	return sql.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.AutoMigrate(&User{})
	})
}

// LoadAll returns every blacklisted user id.
func LoadAll(ctx context.Context, sql *storage.SQL) ([]string, error) {
	var ids []string
	err := sql.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Model(&User{}).Order("id").Pluck("user_id", &ids).Error
	})
	return ids, err
}

// Apply adds or removes userID. changed is false when the list already had
// the requested state; ids is the complete list after the change.
func Apply(ctx context.Context, sql *storage.SQL, add bool, userID string) (changed bool, ids []string, err error) {
	err = sql.Transaction(ctx, func(tx *gorm.DB) error {
		var existing User
		err := tx.Where("user_id = ?", userID).Take(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		switch {
		case add && found, !add && !found:
			return nil
		case add:
			err = tx.Create(&User{UserID: userID}).Error
		default:
			err = tx.Where("user_id = ?", userID).Delete(&User{}).Error
		}
		if err != nil {
			return err
		}

		changed = true
		return tx.Model(&User{}).Order("id").Pluck("user_id", &ids).Error
	})
	return changed, ids, err
}

func (m *Module) publish(ids []string) {
	if m.Entry.Events != nil {
		m.Entry.Events.Publish(events.Event{Type: events.BlacklistChanged, UserIDs: ids})
	}
}

func (m *Module) RegisterCommands(r *command.Registry) {
	for _, action := range []string{ActionAdd, ActionRemove} {
		ext := command.Extension{"action": action}
		r.Add("blacklist", action, "core", "", func(ctx *command.Context, args []string, raw string, _ command.Extension) error {
			return m.handle(ctx, args, raw, ext)
		})
	}
}

func (m *Module) handle(ctx *command.Context, args []string, _ string, ext command.Extension) error {
	if len(args) == 0 {
		return command.Fail(errNoUser)
	}
	userID, ok := command.SnowflakeFromMention(args[0])
	if !ok {
		return command.Fail(errBadUser)
	}

	reply, err := m.action(ext["action"] == ActionAdd, userID)
	if err != nil {
		return fmt.Errorf("blacklist %s %s: %w", ext["action"], userID, err)
	}
	_, err = ctx.Reply(reply)
	return err
}

func (m *Module) action(add bool, userID string) (string, error) {
	changed, ids, err := Apply(context.Background(), m.Entry.SQL, add, userID)
	if err != nil {
		return "", err
	}

	switch {
	case !changed && add:
		return replyAlreadyListed, nil
	case !changed:
		return replyNotListed, nil
	}

	m.publish(ids)
	if add {
		return replyListed, nil
	}
	return replyUnlisted, nil
}

func (m *Module) SlashCommands() []*discordgo.ApplicationCommand {
	user := []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: "Target user",
		Required:    true,
	}}
	return []*discordgo.ApplicationCommand{{
		Name:        "blacklist",
		Description: "Deny a user every bot command",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        ActionAdd,
				Description: "Blacklist a user",
				Options:     user,
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        ActionRemove,
				Description: "Lift a user's blacklisting",
				Options:     user,
			},
		},
	}}
}

func (m *Module) IncomingInteraction(i *command.Interaction) error {
	sub, opts := i.Subcommand()
	if sub != ActionAdd && sub != ActionRemove {
		return core.RespondEphemeral(i.Session, i.Event, "Unknown action.")
	}
	userID, ok := command.SnowflakeFromMention(opts["user"])
	if !ok {
		return core.RespondEphemeral(i.Session, i.Event, errBadUser)
	}

	reply, err := m.action(sub == ActionAdd, userID)
	if err != nil {
		return err
	}
	return core.RespondEphemeral(i.Session, i.Event, reply)
}
